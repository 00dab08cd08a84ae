// internal/gateway/reference.go
package gateway

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/Corphon/AnimeStoryboard/internal/models"
)

// ErrInvalidDataURL 不是 base64 编码的 data URL
var ErrInvalidDataURL = errors.New("invalid data url")

// SelectReferenceCharacters 选出需要作为参考图的角色。
// activeIDs 非空时按ID选择，未知ID直接忽略；否则选择有参考图且名字出现在描述中的角色
func SelectReferenceCharacters(pc models.ProjectContext, desc string, activeIDs []string) []models.Character {
	var out []models.Character

	if len(activeIDs) > 0 {
		wanted := make(map[string]struct{}, len(activeIDs))
		for _, id := range activeIDs {
			wanted[id] = struct{}{}
		}
		for _, c := range pc.Characters {
			if _, ok := wanted[c.ID]; ok {
				out = append(out, c)
			}
		}
		return out
	}

	lowerDesc := strings.ToLower(desc)
	for _, c := range pc.Characters {
		if c.ImageURL == "" || c.Name == "" {
			continue
		}
		if strings.Contains(lowerDesc, strings.ToLower(c.Name)) {
			out = append(out, c)
		}
	}
	return out
}

// DecodeDataURL 解析 data:<mime>;base64,<data>，缺少 mime 时按 image/png 处理
func DecodeDataURL(url string) (data []byte, mimeType string, err error) {
	rest, ok := strings.CutPrefix(url, "data:")
	if !ok {
		return nil, "", ErrInvalidDataURL
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok || payload == "" {
		return nil, "", ErrInvalidDataURL
	}
	mimeType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return nil, "", ErrInvalidDataURL
	}
	if mimeType == "" {
		mimeType = "image/png"
	}

	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
	}
	return data, mimeType, nil
}

// EncodeDataURL 生成 base64 data URL
func EncodeDataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

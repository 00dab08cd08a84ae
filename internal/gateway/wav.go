// internal/gateway/wav.go
package gateway

import (
	"bytes"
	"encoding/binary"
)

// TTS 输出的 PCM 格式：单声道 16 位
const (
	SpeechSampleRate = 24000
	wavHeaderSize    = 44
	wavChannels      = 1
	wavBitsPerSample = 16
)

// EncodeWAV 为小端 16 位单声道 PCM 加上 44 字节 RIFF 头
func EncodeWAV(pcm []byte, sampleRate int) []byte {
	blockAlign := wavChannels * wavBitsPerSample / 8
	byteRate := sampleRate * blockAlign
	dataSize := len(pcm)

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+dataSize))
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16)) // fmt 块长度
	binary.Write(buf, binary.LittleEndian, uint16(1))  // PCM
	binary.Write(buf, binary.LittleEndian, uint16(wavChannels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(wavBitsPerSample))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataSize))
	buf.Write(pcm)

	return buf.Bytes()
}

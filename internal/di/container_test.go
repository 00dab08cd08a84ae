package di

import (
	"errors"
	"testing"
)

type closerStub struct {
	name   string
	closed *[]string
	err    error
}

func (c *closerStub) Close() error {
	*c.closed = append(*c.closed, c.name)
	return c.err
}

func TestResolve(t *testing.T) {
	c := NewContainer()
	c.Register(Project, "project-service")

	got, err := Resolve[string](c, Project)
	if err != nil || got != "project-service" {
		t.Fatalf("解析服务失败: %v", err)
	}
	if _, err := Resolve[int](c, Project); err == nil {
		t.Fatal("类型不匹配应返回错误")
	}
	if _, err := Resolve[string](c, Gateway); err == nil {
		t.Fatal("未注册的服务应返回错误")
	}
}

func TestCloseAllReverseOrder(t *testing.T) {
	c := NewContainer()
	var closed []string
	c.Register(Logger, &closerStub{name: "logger", closed: &closed})
	c.Register(Metrics, "not a closer")
	c.Register(Snapshots, &closerStub{name: "redis", closed: &closed, err: errors.New("boom")})

	if err := c.CloseAll(); err == nil {
		t.Fatal("应返回关闭错误")
	}
	if len(closed) != 2 || closed[0] != "redis" || closed[1] != "logger" {
		t.Fatalf("关闭顺序错误: %v", closed)
	}
}

func TestRegisterReplaceKeepsOrder(t *testing.T) {
	c := NewContainer()
	c.Register(Project, 1)
	c.Register(Autosave, 2)
	c.Register(Project, 3)

	if names := c.GetNames(); len(names) != 2 {
		t.Fatalf("替换不应新增服务: %v", names)
	}
	if v, _ := Resolve[int](c, Project); v != 3 {
		t.Fatal("同名服务应被替换")
	}

	c.Clear()
	if c.Has(Project) {
		t.Fatal("清空后不应有服务")
	}
}

package main

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/John-Robertt/subsync-go/internal/fetch"
	"github.com/John-Robertt/subsync-go/internal/mapping"
	"github.com/John-Robertt/subsync-go/internal/render"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

func runMap(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("map", flag.ContinueOnError)
	settings := fs.String("settings", "", "用户设置文件（YAML/JSON）")
	target := fs.String("target", "", "待写入的 sing-box 配置文件")
	mappings := fs.String("mappings", "", "映射定义文件；不存在时写入默认规则；为空时使用内置默认规则")
	out := fs.String("out", "", "输出文件；为空时写到标准输出")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *settings == "" || *target == "" {
		return errors.New("map: -settings and -target are required")
	}

	source, err := loadTree(*settings)
	if err != nil {
		return err
	}
	dest, err := loadTree(*target)
	if err != nil {
		return err
	}

	def := mapping.DefaultDefinition()
	if *mappings != "" {
		def, err = mapping.Store{Path: *mappings}.Load()
		if err != nil {
			return err
		}
	}

	applier := &mapping.Applier{Log: logrus.StandardLogger()}
	result, ruleErrs := applier.Apply(source, dest, def.Mappings)
	if len(ruleErrs) > 0 {
		logrus.Warnf("%d of %d mapping rules failed", len(ruleErrs), len(def.Mappings))
	}

	b, err := render.Encode(result, render.FormatJSON)
	if err != nil {
		return err
	}
	return writeOutput(*out, b, stdout)
}

// loadTree reads a YAML or JSON object. An empty document is an empty object.
func loadTree(path string) (map[string]any, error) {
	text, err := fetch.ReadLocal(fetch.KindDocument, path, fetch.Options{})
	if err != nil {
		return nil, err
	}
	var v any
	if err := yaml.Unmarshal([]byte(text), &v); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if v == nil {
		return map[string]any{}, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: top level must be an object, got %T", path, v)
	}
	return m, nil
}

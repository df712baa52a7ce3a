package config

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Ptr      reflect.Value //指向配置结构体值,优先级：命令行覆盖值>配置文件>环境变量>默认值
	Modify   any           //命令行覆盖的值
	Env      any           //环境变量中的值
	File     any           //配置文件中的值
	Default  any           //默认值
	name     string        // 小写
	propsMap map[string]*Config
	props    []*Config
	tag      reflect.StructTag
}

var durationType = reflect.TypeOf(time.Duration(0))

func (config *Config) Get(key string) (v *Config) {
	if config.propsMap == nil {
		config.propsMap = make(map[string]*Config)
	}
	if v, ok := config.propsMap[key]; ok {
		return v
	} else {
		v = &Config{
			name: key,
		}
		config.propsMap[key] = v
		config.props = append(config.props, v)
		return v
	}
}

func (config *Config) Has(key string) (ok bool) {
	if config.propsMap == nil {
		return false
	}
	_, ok = config.propsMap[strings.ToLower(key)]
	return ok
}

func (config *Config) MarshalJSON() ([]byte, error) {
	if config.propsMap == nil {
		return json.Marshal(config.GetValue())
	}
	return json.Marshal(config.propsMap)
}

func (config *Config) GetValue() any {
	return config.Ptr.Interface()
}

// Parse 第一步读取配置结构体的默认值（default 标签）和环境变量
func (config *Config) Parse(s any, prefix ...string) (err error) {
	var t reflect.Type
	var v reflect.Value
	if vv, ok := s.(reflect.Value); ok {
		t, v = vv.Type(), vv
	} else {
		t, v = reflect.TypeOf(s), reflect.ValueOf(s)
	}
	if t.Kind() == reflect.Pointer {
		t, v = t.Elem(), v.Elem()
	}

	config.Ptr = v
	config.Default = v.Interface()

	if l := len(prefix); l > 0 && t.Kind() != reflect.Struct {
		name := strings.ToLower(prefix[l-1])
		if tag := config.tag.Get("default"); tag != "" {
			dv, err := config.assign(name, tag)
			if err != nil {
				return err
			}
			v.Set(dv)
			config.Default = v.Interface()
		}
		if envValue := os.Getenv(strings.Join(prefix, "_")); envValue != "" {
			ev, err := config.assign(name, envValue)
			if err != nil {
				return fmt.Errorf("env %s: %w", strings.Join(prefix, "_"), err)
			}
			v.Set(ev)
			config.Env = v.Interface()
		}
	}

	if t.Kind() == reflect.Struct && t != durationType {
		for i, j := 0, t.NumField(); i < j; i++ {
			ft, fv := t.Field(i), v.Field(i)

			if !ft.IsExported() {
				continue
			}
			name := strings.ToLower(ft.Name)
			if tag := ft.Tag.Get("yaml"); tag != "" {
				if tag == "-" {
					continue
				}
				name, _, _ = strings.Cut(tag, ",")
			}
			prop := config.Get(name)

			prop.tag = ft.Tag
			if err = prop.Parse(fv, append(prefix, strings.ToUpper(ft.Name))...); err != nil {
				return
			}
		}
	}
	return
}

// ParseUserFile 第二步读取用户配置文件
func (config *Config) ParseUserFile(conf map[string]any) (err error) {
	if conf == nil {
		return
	}
	config.File = conf
	for k, v := range conf {
		if !config.Has(k) {
			continue
		}
		if prop := config.Get(strings.ToLower(k)); prop.props != nil {
			if v != nil {
				sub, ok := v.(map[string]any)
				if !ok {
					return fmt.Errorf("config %s: expect a mapping, got %T", k, v)
				}
				if err = prop.ParseUserFile(sub); err != nil {
					return
				}
			}
		} else {
			fv, err := prop.assign(k, v)
			if err != nil {
				return err
			}
			prop.File = fv.Interface()
			prop.Ptr.Set(fv)
		}
	}
	return
}

// ParseModifyFile 第三步应用命令行等显式覆盖的值
func (config *Config) ParseModifyFile(conf map[string]any) (err error) {
	if conf == nil {
		return
	}
	config.Modify = conf
	for k, v := range conf {
		if !config.Has(k) {
			return fmt.Errorf("config: unknown key %q", k)
		}
		if prop := config.Get(strings.ToLower(k)); prop.props != nil {
			if v != nil {
				sub, ok := v.(map[string]any)
				if !ok {
					return fmt.Errorf("config %s: expect a mapping, got %T", k, v)
				}
				if err = prop.ParseModifyFile(sub); err != nil {
					return
				}
			}
		} else {
			mv, err := prop.assign(k, v)
			if err != nil {
				return err
			}
			prop.Modify = mv.Interface()
			prop.Ptr.Set(mv)
		}
	}
	return
}

func (config *Config) GetMap() map[string]any {
	m := make(map[string]any)
	for k, v := range config.propsMap {
		if v.props != nil {
			if vv := v.GetMap(); vv != nil {
				m[k] = vv
			}
		} else if v.GetValue() != nil {
			m[k] = v.GetValue()
		}
	}
	if len(m) > 0 {
		return m
	}
	return nil
}

var regexPureNumber = regexp.MustCompile(`^\d+$`)

func (config *Config) assign(k string, v any) (target reflect.Value, err error) {
	ft := config.Ptr.Type()

	source := reflect.ValueOf(v)

	if vv, ok := v.(string); ok && ft.Kind() == reflect.String {
		target = reflect.New(ft).Elem()
		target.SetString(vv)
		return
	}

	switch ft {
	case durationType:
		target = reflect.New(ft).Elem()
		if !source.IsValid() || source.IsZero() {
			target.SetInt(0)
		} else if source.Type() == durationType {
			target.Set(source)
		} else {
			timeStr := fmt.Sprint(v)
			if d, perr := time.ParseDuration(timeStr); perr == nil && !regexPureNumber.MatchString(timeStr) {
				target.SetInt(int64(d))
			} else {
				err = fmt.Errorf("invalid duration value for %s: %q, please add unit (ms,s,m,h), eg: 100ms, 10s", k, timeStr)
			}
		}
	default:
		tmpStruct := reflect.StructOf([]reflect.StructField{
			{
				Name: "Value",
				Type: ft,
				Tag:  reflect.StructTag(fmt.Sprintf(`yaml:"%s"`, k)),
			},
		})
		tmpValue := reflect.New(tmpStruct)
		if v != nil {
			var out []byte
			if vv, ok := v.(string); ok {
				out = []byte(fmt.Sprintf("%s: %s", k, vv))
			} else {
				out, _ = yaml.Marshal(map[string]any{k: v})
			}
			if err = yaml.Unmarshal(out, tmpValue.Interface()); err != nil {
				err = fmt.Errorf("config %s: %w", k, err)
				return
			}
		}
		target = tmpValue.Elem().Field(0)
	}
	return
}

// Load 按 默认值 < 环境变量 < 配置文件 < 覆盖值 的顺序填充 target
func Load(target any, envPrefix string, file []byte, overrides map[string]any) (err error) {
	var c Config
	if envPrefix != "" {
		err = c.Parse(target, envPrefix)
	} else {
		err = c.Parse(target)
	}
	if err != nil {
		return
	}
	if len(file) > 0 {
		var conf map[string]any
		if err = yaml.Unmarshal(file, &conf); err != nil {
			return fmt.Errorf("config file: %w", err)
		}
		if err = c.ParseUserFile(conf); err != nil {
			return
		}
	}
	return c.ParseModifyFile(overrides)
}

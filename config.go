package hds

import (
	"fmt"
	"time"

	"m7s.live/hds/pkg"
	"m7s.live/hds/pkg/config"
	"m7s.live/hds/pkg/f4f"
)

// EnvPrefix 环境变量前缀，字段名大写，如 HDS_FRAGMENTDURATION
const EnvPrefix = "HDS"

type Config struct {
	VideoID          string        `yaml:"video_id" default:"some_video" desc:"清单 id 与 streamId"`
	Manifest         string        `default:"manifest.f4m" desc:"清单文件名"`
	FragmentDuration time.Duration `yaml:"fragmentduration" default:"10s" desc:"单个分片的目标时长"`
	SequenceHeaders  string        `yaml:"seqheaders" default:"once" desc:"序列头写入方式 once/every"`
	Template         bool          `desc:"生成模板文件而不是完整分片"`
	DocRoot          string        `default:"." desc:"站点根目录"`
	BaseDir          string        `default:"." desc:"清单所在目录，相对 docroot"`
	Fragments        string        `default:"samples" desc:"分片目录，相对 basedir"`
	BootstrapID      string        `yaml:"bootstrap_id" default:"bt" desc:"bootstrapInfo id"`
	Workers          int           `default:"4" desc:"批量模式并发数"`
	Log              pkg.LogConfig
}

// LoadConfig 默认值 < HDS_* 环境变量 < 配置文件 < 命令行
func LoadConfig(file []byte, overrides map[string]any) (conf Config, err error) {
	if err = config.Load(&conf, EnvPrefix, file, overrides); err != nil {
		return
	}
	err = conf.Validate()
	return
}

func (c *Config) Validate() error {
	if c.FragmentDuration <= 0 {
		return fmt.Errorf("fragmentduration must be positive, got %s", c.FragmentDuration)
	}
	if _, err := c.SequenceHeaderMode(); err != nil {
		return err
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	return nil
}

func (c *Config) SequenceHeaderMode() (f4f.SequenceHeaderMode, error) {
	switch c.SequenceHeaders {
	case "", "once":
		return f4f.SequenceHeaderOnce, nil
	case "every":
		return f4f.SequenceHeaderEveryFragment, nil
	}
	return 0, fmt.Errorf("seqheaders: unknown mode %q", c.SequenceHeaders)
}

func (c *Config) Options() f4f.Options {
	mode, _ := c.SequenceHeaderMode()
	return f4f.Options{
		FragmentDuration: c.FragmentDuration.Seconds(),
		SequenceHeaders:  mode,
		Template:         c.Template,
	}
}

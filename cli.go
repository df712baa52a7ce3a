package hds

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"m7s.live/hds/pkg"
)

const (
	DefaultFragmentDuration      = 10000 // ms
	DefaultBatchFragmentDuration = 3000  // ms
)

type sourceList []string

func (s *sourceList) String() string {
	return strings.Join(*s, ",")
}

func (s *sourceList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// CommandLine 两个命令共用的参数，显式给出的参数覆盖配置文件
type CommandLine struct {
	*flag.FlagSet
	ConfigFile string
	Sources    []string
	Batch      bool
	duration   int
}

func NewCommandLine(name string, batch bool) *CommandLine {
	c := &CommandLine{FlagSet: flag.NewFlagSet(name, flag.ContinueOnError), Batch: batch}
	c.StringVar(&c.ConfigFile, "c", "", "config file (yaml)")
	c.Var((*sourceList)(&c.Sources), "src", "source mp4 file name")
	c.String("video_id", "some_video", "video id for manifest file")
	c.String("manifest", "manifest.f4m", "manifest file name")
	c.Bool("template", false, "make template files instead of full fragments")
	c.String("seqheaders", "once", "sequence headers in the first fragment only (once) or in every fragment (every)")
	c.String("loglevel", "info", "log level trace/debug/info/warn/error")
	if batch {
		c.IntVar(&c.duration, "fragmentduration", DefaultBatchFragmentDuration, "single fragment duration, ms")
		c.Int("workers", 4, "files packaged concurrently")
	} else {
		c.IntVar(&c.duration, "fragmentduration", DefaultFragmentDuration, "single fragment duration, ms")
		c.String("docroot", ".", "docroot directory")
		c.String("basedir", ".", "base directory for manifest file")
		c.String("fragments", "samples", "directory for fragment files")
	}
	return c
}

// Parse 解析参数并加载配置，没有源文件时打印用法并返回 pkg.ErrNoSource
func (c *CommandLine) Parse(args []string) (conf Config, err error) {
	if err = c.FlagSet.Parse(args); err != nil {
		return
	}
	c.Sources = append(c.Sources, c.Args()...)
	if len(c.Sources) == 0 {
		c.Usage()
		return conf, pkg.ErrNoSource
	}
	if !c.Batch && len(c.Sources) > 1 {
		return conf, fmt.Errorf("%s takes a single source, got %d", c.Name(), len(c.Sources))
	}
	var file []byte
	if c.ConfigFile != "" {
		if file, err = os.ReadFile(c.ConfigFile); err != nil {
			return
		}
	}
	overrides := make(map[string]any)
	c.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "c", "src":
		case "fragmentduration":
			overrides[f.Name] = time.Duration(c.duration) * time.Millisecond
		case "template", "workers":
			overrides[f.Name] = f.Value.(flag.Getter).Get()
		case "loglevel":
			overrides["log"] = map[string]any{"level": f.Value.String()}
		default:
			overrides[f.Name] = f.Value.String()
		}
	})
	// 批量模式的默认分片时长不同，只在配置文件和环境变量都没有给出时生效
	if _, ok := overrides["fragmentduration"]; !ok && c.Batch && file == nil && os.Getenv(EnvPrefix+"_FRAGMENTDURATION") == "" {
		overrides["fragmentduration"] = time.Duration(c.duration) * time.Millisecond
	}
	return LoadConfig(file, overrides)
}

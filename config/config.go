// Package config defines the podmirror command line. Every flag can also be
// set through a PODMIRROR_* environment variable, a .env file or a YAML file
// passed with --config.
package config

import (
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultFeedURL is the show mirrored when no feed is configured.
const DefaultFeedURL = "https://feeds.acast.com/public/shows/5af195bb77c1746339e08ab6"

// CLI is the parsed configuration.
type CLI struct {
	FeedURL        string        `name:"feed-url" env:"PODMIRROR_FEED_URL" default:"${default_feed_url}" help:"Feed to mirror."`
	TargetDir      string        `name:"target-dir" env:"PODMIRROR_TARGET_DIR" default:"episodes" help:"Directory the episodes are written to."`
	Concurrency    int           `name:"concurrency" short:"c" env:"PODMIRROR_CONCURRENCY" default:"50" help:"Maximum number of simultaneous downloads."`
	ConnectTimeout time.Duration `name:"connect-timeout" env:"PODMIRROR_CONNECT_TIMEOUT" default:"30s" help:"Timeout for connecting and receiving response headers."`
	IdleTimeout    time.Duration `name:"idle-timeout" env:"PODMIRROR_IDLE_TIMEOUT" default:"60s" help:"Fail a download that receives no data for this long."`
	MaxRedirects   int           `name:"max-redirects" env:"PODMIRROR_MAX_REDIRECTS" default:"10" help:"Maximum number of redirects to follow."`
	Journal        string        `name:"journal" env:"PODMIRROR_JOURNAL" help:"SQLite file recording the outcome of each run. Disabled when empty."`
	ShowNotes      bool          `name:"show-notes" env:"PODMIRROR_SHOW_NOTES" help:"Fetch the episode web page when the feed has no description."`
	Verbose        bool          `name:"verbose" short:"v" env:"PODMIRROR_VERBOSE" help:"Enable debug logging."`
	JSONLogs       bool          `name:"json-logs" env:"PODMIRROR_JSON_LOGS" help:"Log as JSON."`

	Config kong.ConfigFlag `name:"config" help:"YAML configuration file."`
}

// Validate is called by kong after parsing.
func (c *CLI) Validate() error {
	switch {
	case strings.TrimSpace(c.FeedURL) == "":
		return errors.New("feed url must not be empty")
	case strings.TrimSpace(c.TargetDir) == "":
		return errors.New("target directory must not be empty")
	case c.Concurrency < 1:
		return errors.Newf("concurrency must be at least 1, got %d", c.Concurrency)
	case c.ConnectTimeout <= 0:
		return errors.Newf("connect timeout must be positive, got %s", c.ConnectTimeout)
	case c.IdleTimeout <= 0:
		return errors.Newf("idle timeout must be positive, got %s", c.IdleTimeout)
	case c.MaxRedirects < 0:
		return errors.Newf("max redirects must not be negative, got %d", c.MaxRedirects)
	}
	return nil
}

// New builds the kong parser for cli.
func New(cli *CLI, options ...kong.Option) (*kong.Kong, error) {
	options = append([]kong.Option{
		kong.Name("podmirror"),
		kong.Description("Mirror every episode of a podcast feed: a text summary and the audio file."),
		kong.Vars{"default_feed_url": DefaultFeedURL},
		kong.Configuration(YAML),
		kong.UsageOnError(),
	}, options...)
	return kong.New(cli, options...)
}

// Parse parses args into a CLI.
func Parse(args []string, options ...kong.Option) (*CLI, error) {
	var cli CLI
	parser, err := New(&cli, options...)
	if err != nil {
		return nil, err
	}
	if _, err := parser.Parse(args); err != nil {
		return nil, err
	}
	return &cli, nil
}

// LoadDotEnv exports the variables in path that are not set yet. A missing
// file is not an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// YAML is a kong configuration loader. Keys are flag names, with either
// dashes or underscores:
//
//	feed_url: https://example.com/feed.xml
//	concurrency: 8
//	idle-timeout: 2m
func YAML(r io.Reader) (kong.Resolver, error) {
	values := map[string]interface{}{}
	if err := yaml.NewDecoder(r).Decode(&values); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "parse yaml config")
	}

	var f kong.ResolverFunc = func(context *kong.Context, parent *kong.Path, flag *kong.Flag) (interface{}, error) {
		for _, key := range []string{flag.Name, strings.ReplaceAll(flag.Name, "-", "_")} {
			raw, ok := values[key]
			if !ok || raw == nil {
				continue
			}
			switch raw.(type) {
			case map[string]interface{}, []interface{}:
				return nil, errors.Newf("config key %q must be a scalar", key)
			}
			return fmt.Sprint(raw), nil
		}
		return nil, nil
	}
	return f, nil
}

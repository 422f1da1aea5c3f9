package main

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/ccollins476ad/slurp/config"
	"github.com/ccollins476ad/slurp/probe"
	"github.com/ccollins476ad/slurp/reddit"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	defaultLimit   = 100
	defaultTimeout = 30 * time.Second
)

type Config struct {
	ConfigPath  string        // Path of the credentials file.
	Channel     string        // Subreddit to read.
	User        string        // User whose submissions to read.
	Hot         bool          // True for the trending listing instead of newest.
	Limit       int           // Maximum number of posts to process.
	Verbose     bool          // True for info output.
	Debug       bool          // True for debug output.
	OutputDir   string        // Base directory; media goes in <OutputDir>/<channel|user>.
	Timeout     time.Duration // Per-request timeout.
	MaxHops     int           // Redirect/resolution cap per post.
	MetricsFile string        // Optional prometheus textfile to write at the end of the run.
}

// Query returns the listing the configuration asks for.
func (cfg *Config) Query() reddit.Query {
	sort := reddit.New
	if cfg.Hot {
		sort = reddit.Hot
	}
	return reddit.Query{
		Channel: cfg.Channel,
		User:    cfg.User,
		Sort:    sort,
		Limit:   cfg.Limit,
	}
}

// StoreDir returns the directory media files are saved to.
func (cfg *Config) StoreDir() string {
	return filepath.Join(cfg.OutputDir, cfg.Query().Name())
}

func setLogLevel(cfg *Config) {
	switch {
	case cfg.Debug:
		log.SetLevel(log.DebugLevel)
	case cfg.Verbose:
		log.SetLevel(log.InfoLevel)
	default:
		log.SetLevel(log.ErrorLevel)
	}
}

// newRootCmd builds the command tree. A nil transport selects the default
// http transport.
func newRootCmd(transport http.RoundTripper) *cobra.Command {
	cfg := &Config{}

	root := &cobra.Command{
		Use:   "slurp",
		Short: "Slurp images and videos from reddit channels",
		Long: "slurp reads a subreddit or a user's submissions and downloads the images and " +
			"videos they link to, following redirects and scraping hosting pages as needed.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			setLogLevel(cfg)
			if cfg.ConfigPath == "" {
				path, err := config.DefaultPath()
				if err != nil {
					return err
				}
				cfg.ConfigPath = path
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			creds, err := config.Load(cfg.ConfigPath)
			if err != nil {
				return err
			}

			if cfg.Channel == "" && cfg.User == "" {
				cmd.Usage()
				fmt.Fprintln(cmd.OutOrStdout(), "Need a channel or reddit user name to slurp media from.")
				return nil
			}

			return slurp(cmd.Context(), cfg, creds, transport)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfg.ConfigPath, "config", "", "credentials file (default: <user config dir>/"+config.Filename+")")
	pf.BoolVarP(&cfg.Verbose, "verbose", "v", false, "verbose output")
	pf.BoolVar(&cfg.Debug, "debug", false, "debug output")

	f := root.Flags()
	f.BoolVar(&cfg.Hot, "hot", false, "read the trending listing instead of the newest posts")
	f.StringVar(&cfg.Channel, "channel", "", "subreddit to slurp")
	f.StringVar(&cfg.User, "user", "", "reddit user whose submissions to slurp")
	f.IntVar(&cfg.Limit, "limit", defaultLimit, "maximum number of posts to process")
	f.StringVar(&cfg.OutputDir, "output", ".", "directory to create the channel/user directory in")
	f.DurationVar(&cfg.Timeout, "timeout", defaultTimeout, "timeout for each http request")
	f.IntVar(&cfg.MaxHops, "max-hops", probe.DefaultMaxHops, "maximum redirects and resolutions per post")
	f.StringVar(&cfg.MetricsFile, "metrics-file", "", "write run metrics to this prometheus textfile")

	root.AddCommand(newConfigureCmd(cfg))
	return root
}

func newConfigureCmd(cfg *Config) *cobra.Command {
	creds := &config.Credentials{}

	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Save reddit application credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return config.Save(cfg.ConfigPath, creds)
		},
	}

	f := cmd.Flags()
	f.StringVar(&creds.ClientID, "client-id", "", "reddit application client id")
	f.StringVar(&creds.ClientSecret, "client-secret", "", "reddit application client secret")
	f.StringVar(&creds.ImgurClientID, "imgur-client-id", "", "imgur api client id (optional)")
	cmd.MarkFlagRequired("client-id")
	cmd.MarkFlagRequired("client-secret")

	return cmd
}

// exitCode maps the result of running the command tree to a process exit
// code.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}

// errorMessage returns the text to show the user for a fatal error.
func errorMessage(err error) string {
	if errors.Is(err, config.ErrMissing) {
		return fmt.Sprintf("%v\nPlease configure slurp before using: slurp configure --client-id=ID --client-secret=SECRET", err)
	}
	return err.Error()
}

package config

import (
	"flag"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/medcert/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-m string   Redis URL for the session store (empty: in-process fallback)
//	-s string   JWT HMAC secret key
//	-t int      access token validity, minutes
//	-n int      session record validity, minutes
//	-q int      auth endpoints rate limit, requests per minute
//	-w int      ICD endpoints rate limit, requests per minute
//	-i string   WHO ICD API base URL
//	-k string   WHO OAuth2 token endpoint
//	-u string   WHO OAuth2 client id
//	-p string   WHO OAuth2 client secret
//	-r string   WHO release list, comma-separated (e.g., "2024-01,2023-01")
//	-f string   WHO preferred release
//	-g string   CID-10 directory table URL
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes using
//     flagx.FilterArgs, avoiding collisions with other components.
//   - Duration flags are accepted as integers in minutes and then converted
//     to time.Duration values.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-d", "-m", "-s", "-t", "-n", "-q", "-w",
		"-i", "-k", "-u", "-p", "-r", "-f", "-g",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.RedisURL, "m", config.RedisURL, "redis URL for session store")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	tokenTTL := fs.Int("t", int(config.TokenTTL.Minutes()), "token_ttl (in minutes)")
	sessionTTL := fs.Int("n", int(config.SessionTTL.Minutes()), "session_ttl (in minutes)")

	fs.IntVar(&config.AuthRateLimit, "q", config.AuthRateLimit, "auth rate limit (requests per window)")
	fs.IntVar(&config.IcdRateLimit, "w", config.IcdRateLimit, "ICD rate limit (requests per window)")

	fs.StringVar(&config.WhoBaseURL, "i", config.WhoBaseURL, "WHO ICD API base URL")
	fs.StringVar(&config.WhoTokenURL, "k", config.WhoTokenURL, "WHO OAuth2 token endpoint")
	fs.StringVar(&config.WhoClientID, "u", config.WhoClientID, "WHO OAuth2 client id")
	fs.StringVar(&config.WhoClientSecret, "p", config.WhoClientSecret, "WHO OAuth2 client secret")

	releases := fs.String("r", strings.Join(config.WhoReleases, ","), "WHO release list, comma-separated")
	fs.StringVar(&config.WhoPreferredRelease, "f", config.WhoPreferredRelease, "WHO preferred release")

	fs.StringVar(&config.DirectoryBaseURL, "g", config.DirectoryBaseURL, "CID-10 directory table URL")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.TokenTTL = time.Duration(*tokenTTL) * time.Minute
	config.SessionTTL = time.Duration(*sessionTTL) * time.Minute

	config.WhoReleases = config.WhoReleases[:0]
	for _, r := range strings.Split(*releases, ",") {
		if r = strings.TrimSpace(r); r != "" {
			config.WhoReleases = append(config.WhoReleases, r)
		}
	}
}

// Package config loads the flat key=value configuration file shared by the
// spider and searcher executables.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/codepr/gosearch/internal/env"
)

// Error kinds surfaced to the two cmd/ mains at startup.
type ConfigError struct {
	Key string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config: %s: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("config: missing required key %q", e.Key)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Config holds every value required to start either executable.
type Config struct {
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string

	StartPage      string
	RecursionDepth int
	ServerPort     string
}

// required lists the keys that must be present in the parsed map, mirroring
// the fields Config exposes.
var required = []string{
	"db_host", "db_port", "db_name", "db_user", "db_password",
	"start_page", "recursion_depth", "server_port",
}

// Load reads path, parses it as key=value text and builds a Config. Every
// key may be overridden by an environment variable of the same name
// (upper-cased), the way the teacher's env.GetEnv lets CrawlerSettings be
// overridden from the environment.
func Load(path string) (*Config, error) {
	raw, err := parseFile(path)
	if err != nil {
		return nil, err
	}
	get := func(key string) (string, bool) {
		envKey := strings.ToUpper(key)
		if v := env.GetEnv(envKey, ""); v != "" {
			return v, true
		}
		v, ok := raw[key]
		return v, ok
	}
	for _, key := range required {
		if _, ok := get(key); !ok {
			return nil, &ConfigError{Key: key}
		}
	}
	depthStr, _ := get("recursion_depth")
	depth, err := strconv.Atoi(depthStr)
	if err != nil {
		return nil, &ConfigError{Key: "recursion_depth", Err: err}
	}
	if depth < 1 {
		return nil, &ConfigError{Key: "recursion_depth", Err: fmt.Errorf("must be >= 1, got %d", depth)}
	}
	cfg := &Config{RecursionDepth: depth}
	cfg.DBHost, _ = get("db_host")
	cfg.DBPort, _ = get("db_port")
	cfg.DBName, _ = get("db_name")
	cfg.DBUser, _ = get("db_user")
	cfg.DBPassword, _ = get("db_password")
	cfg.StartPage, _ = get("start_page")
	cfg.ServerPort, _ = get("server_port")
	if !strings.HasPrefix(cfg.StartPage, "http://") && !strings.HasPrefix(cfg.StartPage, "https://") {
		return nil, &ConfigError{Key: "start_page", Err: fmt.Errorf("must be an absolute http(s) URL, got %q", cfg.StartPage)}
	}
	return cfg, nil
}

// parseFile implements the minimal ini-like grammar from spec §6: lines
// starting with ';' or '#' are comments, keys and values are trimmed and
// values may be wrapped in double quotes.
func parseFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ConfigError{Key: path, Err: err}
	}
	defer f.Close()

	out := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		value := strings.TrimSpace(line[eq+1:])
		if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
			value = value[1 : len(value)-1]
		}
		out[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, &ConfigError{Key: path, Err: err}
	}
	return out, nil
}

package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	DatabaseURL string
	HTTPAddr    string

	DirectoryBaseURL string
	DirectoryTimeout time.Duration
}

func FromEnv() (Config, error) {
	var c Config

	c.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if c.DatabaseURL == "" {
		return c, fmt.Errorf("DATABASE_URL is empty")
	}

	c.HTTPAddr = strings.TrimSpace(os.Getenv("HTTP_ADDR"))
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}

	c.DirectoryBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("STUDENT_DIRECTORY_URL")), "/")
	if c.DirectoryBaseURL == "" {
		return c, fmt.Errorf("STUDENT_DIRECTORY_URL is empty")
	}

	c.DirectoryTimeout = 2 * time.Second
	if raw := strings.TrimSpace(os.Getenv("STUDENT_DIRECTORY_TIMEOUT")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return c, fmt.Errorf("STUDENT_DIRECTORY_TIMEOUT is invalid: %v", err)
		}
		c.DirectoryTimeout = d
	}

	return c, nil
}

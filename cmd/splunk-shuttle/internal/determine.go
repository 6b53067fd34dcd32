// Package internal resolves where the command sends data and with which
// properties.
package internal

import (
	"fmt"
	"log"
	"net"
	"net/url"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DetermineLogsURL picks the collector URL, favoring the command line over
// the properties file over $SPLUNK_URL.
func DetermineLogsURL(envURL, cmdLineURL, fileURL string, errLogger *log.Logger) string {
	switch {
	case cmdLineURL != "":
		if envURL != "" || fileURL != "" {
			errLogger.Println("Warning: Use of -url together with $SPLUNK_URL or a properties file url, using -url option")
		}
		return cmdLineURL
	case fileURL != "":
		return fileURL
	}
	return envURL
}

// ValidateURL checks that u is an absolute http(s) URL with a sane host.
func ValidateURL(u string) (*url.URL, error) {
	oURL, err := url.Parse(u)
	if err != nil {
		return nil, fmt.Errorf("Error parsing -url/$SPLUNK_URL: %s", err.Error())
	}

	switch oURL.Scheme {
	case "http", "https":
	default:
		return nil, fmt.Errorf("Invalid URL scheme in provided url: %s", oURL.Redacted())
	}

	if oURL.Host == "" {
		return nil, fmt.Errorf("No host specified in provided url: %s", oURL.Redacted())
	}

	if _, port, err := net.SplitHostPort(oURL.Host); err == nil {
		if _, err := strconv.Atoi(port); err != nil {
			return nil, fmt.Errorf("Invalid port specified in provided url: %s", oURL.Redacted())
		}
	}

	return oURL, nil
}

// LoadProperties reads a flat YAML mapping of output properties, the same
// names ConfigFromProperties accepts. An empty path yields no properties.
func LoadProperties(path string) (map[string]interface{}, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading properties file")
	}
	props := make(map[string]interface{})
	if err := yaml.Unmarshal(b, &props); err != nil {
		return nil, errors.Wrapf(err, "parsing properties file %s", path)
	}
	return props, nil
}

package utils

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// ExtractServerNameFromConnectionString extracts the server name from a connection string.
// Both URL form (sqlserver://host:1433?database=x) and key/value form
// (server=host,1433;database=x) are understood. Local servers and IP addresses are
// replaced by the machine's hostname so lock names stay unique per machine.
func ExtractServerNameFromConnectionString(connectionString string) (string, error) {
	var serverName string
	if strings.Contains(connectionString, "://") {
		u, err := url.Parse(connectionString)
		if err != nil {
			return "", fmt.Errorf("failed to parse connection string: %w", err)
		}
		serverName = u.Hostname()
	} else {
		serverName = serverFromKeyValues(connectionString)
	}

	if serverName == "" {
		return "", fmt.Errorf("server name not found in connection string")
	}

	// drop the domain and any named instance
	serverName = strings.Split(serverName, `\`)[0]
	if !isIPAddress(serverName) {
		serverName = strings.Split(serverName, ".")[0]
	}

	if strings.EqualFold(serverName, "localhost") || serverName == "(local)" || isIPAddress(serverName) {
		hostname, err := os.Hostname()
		if err != nil {
			return "", fmt.Errorf("failed to get hostname: %w", err)
		}
		serverName = hostname
	}

	return strings.ToLower(serverName), nil
}

func serverFromKeyValues(connectionString string) string {
	for _, part := range strings.Split(connectionString, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "server", "data source", "address", "addr":
			value = strings.TrimPrefix(strings.TrimSpace(value), "tcp:")
			if i := strings.IndexByte(value, ','); i >= 0 {
				value = value[:i]
			}
			return value
		}
	}
	return ""
}

// isIPAddress checks if a string is an IP address or part of one (like '127')
func isIPAddress(host string) bool {
	if ip := net.ParseIP(host); ip != nil {
		return true
	}

	if num, err := strconv.Atoi(host); err == nil {
		return num >= 0 && num <= 255
	}

	// partial dotted form such as '127.0'
	if strings.Contains(host, ".") {
		parts := strings.Split(host, ".")
		if len(parts) >= 4 {
			return false
		}
		for _, part := range parts {
			num, err := strconv.Atoi(part)
			if err != nil || num < 0 || num > 255 {
				return false
			}
		}
		return true
	}

	return false
}

package internal

import (
	"log"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/earthboundkid/versioninfo/v2"
)

var sensitiveRegex = regexp.MustCompile(`(?i)(PASSWORD|API_KEY|ACCESS_KEY|SECRET|TOKEN)`)

func ShowVersion() {
	log.Printf("Version: %s", versioninfo.Short())
}

// EnvironmentVars logs the variables with the given prefix, masking any that
// look like credentials.
func EnvironmentVars(prefix string) {
	log.Printf("Environment variables (%s*)", prefix)
	for _, kv := range Environ(prefix) {
		log.Printf("  %s", kv)
	}
}

// Environ returns sorted KEY=value pairs with the given prefix, masked.
func Environ(prefix string) []string {
	var out []string
	for _, entry := range os.Environ() {
		key, value, _ := strings.Cut(entry, "=")
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if sensitiveRegex.MatchString(key) {
			value = "********"
		}
		out = append(out, key+"="+value)
	}
	slices.Sort(out)
	return out
}

func ProcessInfo() {
	log.Printf("PID: %d", os.Getpid())
	if host, err := os.Hostname(); err == nil {
		log.Printf("Host: %s", host)
	}
}

package accounts

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Account pairs a credential with its position in the input file.
type Account struct {
	Index int
	Token string
}

// Label is the short identifier used in logs.
func (a Account) Label() string {
	return fmt.Sprintf("account %d (%s)", a.Index+1, MaskToken(a.Token))
}

var proxySchemes = []string{"http://", "https://", "socks5://", "socks5h://"}

// LoadAccounts reads newline-delimited tokens. A missing file is an error.
func LoadAccounts(path string) ([]Account, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open accounts file: %w", err)
	}
	defer file.Close()

	lines, err := readLines(file)
	if err != nil {
		return nil, fmt.Errorf("read accounts file: %w", err)
	}

	out := make([]Account, 0, len(lines))
	for i, token := range lines {
		out = append(out, Account{Index: i, Token: token})
	}
	return out, nil
}

// LoadProxies reads newline-delimited proxy endpoints. A missing file means
// no proxies.
func LoadProxies(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warnf("Proxy file %s not found, running without proxies", path)
			return nil, nil
		}
		return nil, fmt.Errorf("open proxy file: %w", err)
	}
	defer file.Close()

	lines, err := readLines(file)
	if err != nil {
		return nil, fmt.Errorf("read proxy file: %w", err)
	}

	proxies := make([]string, 0, len(lines))
	for _, line := range lines {
		proxies = append(proxies, NormalizeProxy(line))
	}
	return proxies, nil
}

// NormalizeProxy prefixes endpoints without a scheme with http://.
func NormalizeProxy(endpoint string) string {
	lower := strings.ToLower(endpoint)
	for _, scheme := range proxySchemes {
		if strings.HasPrefix(lower, scheme) {
			return endpoint
		}
	}
	return "http://" + endpoint
}

// MaskToken keeps only the tail of a credential.
func MaskToken(token string) string {
	const keep = 6
	if len(token) <= keep {
		return strings.Repeat("*", len(token))
	}
	return "..." + token[len(token)-keep:]
}

func readLines(r io.Reader) ([]string, error) {
	lines := make([]string, 0)
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}

	if err := scanner.Err(); err != nil {
		return lines, fmt.Errorf("scan: %w", err)
	}
	return lines, nil
}

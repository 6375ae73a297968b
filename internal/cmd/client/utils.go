package clientcmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// session carries the flags every ledger subcommand shares.
type session struct {
	apiURL   func() string
	identity string
	admin    bool
	token    string
}

func (s *session) decorate(req *http.Request) {
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
		return
	}
	if s.identity != "" {
		req.Header.Set("X-Ledger-Identity", s.identity)
	}
	if s.admin {
		req.Header.Set("X-Ledger-Admin", "true")
	}
}

func (s *session) do(method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequest(method, s.apiURL()+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	s.decorate(req)
	return http.DefaultClient.Do(req)
}

// doJSON performs a request and decodes a JSON response, surfacing API error
// bodies as errors.
func (s *session) doJSON(method, path string, body io.Reader, out interface{}) error {
	resp, err := s.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		b, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(b, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(b)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

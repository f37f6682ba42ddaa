package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"krysselista/auth"
	"krysselista/domain"
	"net/http"
	"strings"
	"time"

	"github.com/gookit/color"
	"github.com/stretchr/testify/suite"
)

type BaseHTTPSuite struct {
	suite.Suite
	Config Config
	tokens *auth.Tokens
	client *http.Client
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseHTTPSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.ServerAddr == "" {
		s.T().Skip("E2E_SERVER_ADDR not set")
	}
	s.tokens = auth.NewTokens(s.Config.JWTSigningKey, s.Config.JWTIssuer, time.Hour)
	s.client = &http.Client{Timeout: 10 * time.Second}
}

// Step prints a colorized header for a scenario step in logs
func (s *BaseHTTPSuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// Call sends body as JSON on behalf of viewer and decodes the JSON answer into out.
func (s *BaseHTTPSuite) Call(viewer domain.Viewer, method, path string, body, out any) int {
	var payload io.Reader
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		s.Require().NoError(err)
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, strings.TrimRight(s.Config.ServerAddr, "/")+path, payload)
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	token, err := s.tokens.Issue(viewer)
	s.Require().NoError(err)
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := s.client.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	answer, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)

	logBuilder := strings.Builder{}
	fmt.Fprintf(&logBuilder, "HTTP %s %s [%d] in %v as %s", method, path, resp.StatusCode, time.Since(start), viewer.ID)
	// Log full JSON request/response bodies if E2E_DEBUG_JSON is enabled
	if s.Config.DebugJSON {
		fmt.Fprintf(&logBuilder, "\nREQUEST:\n%s\nRESPONSE:\n%s", raw, answer)
	}
	s.T().Log(logBuilder.String())

	if out != nil && len(answer) > 0 {
		s.Require().NoError(json.Unmarshal(answer, out))
	}
	return resp.StatusCode
}

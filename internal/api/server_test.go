package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/curioushi/ftm/internal/engine"
)

type ServerSuite struct {
	suite.Suite
	root string
	eng  *engine.Engine
	srv  *httptest.Server
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerSuite))
}

func (s *ServerSuite) SetupTest() {
	s.root = s.T().TempDir()
	s.eng = engine.New()
	s.Require().NoError(s.eng.CheckoutWithOptions(s.root, engine.CheckoutOptions{DisableWatcher: true}))
	s.srv = httptest.NewServer(New(s.eng))
}

func (s *ServerSuite) TearDownTest() {
	s.srv.Close()
	s.Require().NoError(s.eng.Close())
}

func (s *ServerSuite) get(path string) *http.Response {
	resp, err := http.Get(s.srv.URL + path)
	s.Require().NoError(err)
	return resp
}

func (s *ServerSuite) post(path string, body any) *http.Response {
	data, err := json.Marshal(body)
	s.Require().NoError(err)
	resp, err := http.Post(s.srv.URL+path, "application/json", bytes.NewReader(data))
	s.Require().NoError(err)
	return resp
}

func (s *ServerSuite) TestHealthReportsWatching() {
	resp := s.get("/api/health")
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	var body map[string]any
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&body))
	s.Equal("watching", body["status"])
	s.Equal(s.root, body["watch_dir"])
}

func (s *ServerSuite) TestCheckoutTwiceConflicts() {
	resp := s.post("/api/checkout", map[string]string{"directory": s.root})
	defer resp.Body.Close()
	s.Equal(http.StatusConflict, resp.StatusCode)
}

func (s *ServerSuite) TestScanThenFiles() {
	s.Require().NoError(os.WriteFile(filepath.Join(s.root, "a.txt"), []byte("hello"), 0o644))

	scanResp := s.post("/api/scan", nil)
	defer scanResp.Body.Close()
	s.Equal(http.StatusOK, scanResp.StatusCode)

	filesResp := s.get("/api/files")
	defer filesResp.Body.Close()
	var body struct {
		Files []map[string]any `json:"files"`
	}
	s.Require().NoError(json.NewDecoder(filesResp.Body).Decode(&body))
	s.Len(body.Files, 1)
	s.Equal("a.txt", body.Files[0]["file"])
}

func (s *ServerSuite) TestHistoryMissingFileParamIsBadRequest() {
	resp := s.get("/api/history")
	defer resp.Body.Close()
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *ServerSuite) TestRestoreUnknownChecksumIsNotFound() {
	s.Require().NoError(os.WriteFile(filepath.Join(s.root, "a.txt"), []byte("hello"), 0o644))
	scanResp := s.post("/api/scan", nil)
	scanResp.Body.Close()

	resp := s.post("/api/restore", map[string]string{"file": "a.txt", "checksum_prefix": "deadbeef"})
	defer resp.Body.Close()
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *ServerSuite) TestSnapshotRoundTrip() {
	s.Require().NoError(os.WriteFile(filepath.Join(s.root, "a.txt"), []byte("hello"), 0o644))
	scanResp := s.post("/api/scan", nil)
	scanResp.Body.Close()

	histResp := s.get("/api/history?file=a.txt")
	defer histResp.Body.Close()
	var hist struct {
		Entries []struct {
			Checksum string `json:"checksum"`
		} `json:"entries"`
	}
	s.Require().NoError(json.NewDecoder(histResp.Body).Decode(&hist))
	s.Require().Len(hist.Entries, 1)

	snapResp := s.get("/api/snapshot?checksum=" + hist.Entries[0].Checksum)
	defer snapResp.Body.Close()
	s.Equal(http.StatusOK, snapResp.StatusCode)

	data, err := io.ReadAll(snapResp.Body)
	s.Require().NoError(err)
	s.Equal("hello", string(data))
}

func (s *ServerSuite) TestConfigGetSet() {
	setResp := s.post("/api/config", map[string]string{"key": "settings.max_history", "value": "7"})
	defer setResp.Body.Close()
	s.Equal(http.StatusOK, setResp.StatusCode)

	getResp := s.get("/api/config?key=settings.max_history")
	defer getResp.Body.Close()
	var body map[string]string
	s.Require().NoError(json.NewDecoder(getResp.Body).Decode(&body))
	s.Equal("7", body["value"])
}

func (s *ServerSuite) TestShutdownRequestsStop() {
	resp := s.post("/api/shutdown", nil)
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	select {
	case <-s.eng.ShutdownRequested():
	default:
		s.Fail("expected shutdown to be requested")
	}
}

func (s *ServerSuite) historyChecksums(file string) []string {
	resp := s.get("/api/history?file=" + file)
	defer resp.Body.Close()
	var hist struct {
		Entries []struct {
			Checksum string `json:"checksum"`
		} `json:"entries"`
	}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&hist))

	var out []string
	for _, e := range hist.Entries {
		out = append(out, e.Checksum)
	}
	return out
}

func (s *ServerSuite) TestActivityReturnsRecordedEntries() {
	s.Require().NoError(os.WriteFile(filepath.Join(s.root, "a.txt"), []byte("hello"), 0o644))
	scanResp := s.post("/api/scan", nil)
	scanResp.Body.Close()

	resp := s.get("/api/activity")
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	var body struct {
		Entries []map[string]any `json:"entries"`
	}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&body))
	s.Len(body.Entries, 1)
}

func (s *ServerSuite) TestActivityRejectsMalformedTime() {
	resp := s.get("/api/activity?since=yesterday")
	defer resp.Body.Close()
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *ServerSuite) TestDiffBetweenTwoChecksums() {
	path := filepath.Join(s.root, "a.txt")
	s.Require().NoError(os.WriteFile(path, []byte("one\ntwo\n"), 0o644))
	s.post("/api/scan", nil).Body.Close()
	s.Require().NoError(os.WriteFile(path, []byte("one\ntwo changed\n"), 0o644))
	s.post("/api/scan", nil).Body.Close()

	checksums := s.historyChecksums("a.txt")
	s.Require().Len(checksums, 2)

	resp := s.get("/api/diff?file=a.txt&from=" + checksums[0] + "&to=" + checksums[1])
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	var body struct {
		Hunks []map[string]any `json:"hunks"`
	}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&body))
	s.NotEmpty(body.Hunks)
}

func (s *ServerSuite) TestDiffMissingParamsIsBadRequest() {
	resp := s.get("/api/diff?file=a.txt")
	defer resp.Body.Close()
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *ServerSuite) TestCleanReturnsReport() {
	resp := s.post("/api/clean", nil)
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	var body map[string]any
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&body))
	s.Contains(body, "entries_trimmed")
	s.Contains(body, "orphans_removed")
}

func (s *ServerSuite) TestRestoreTraversalPathIsBadRequest() {
	resp := s.post("/api/restore", map[string]string{"file": "../evil", "checksum_prefix": "deadbeefdeadbeef"})
	defer resp.Body.Close()
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *ServerSuite) TestWrongMethodIsRejected() {
	resp := s.get("/api/scan")
	defer resp.Body.Close()
	s.Equal(http.StatusMethodNotAllowed, resp.StatusCode)
}

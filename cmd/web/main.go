package main

import (
	"bufio"
	"bytes"
	_ "embed"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// =================== TYPES ===================

type runPayload struct {
	Email     string `json:"email"`
	Keywords  string `json:"keywords"`
	Location  string `json:"location"`
	Engine    string `json:"engine"`
	Headless  bool   `json:"headless"`
	Batch     bool   `json:"batch"`
	OTPSource string `json:"otp_source"`
}

type row struct {
	ID            string `json:"id"`
	SearchKeyword string `json:"search_keyword"`
	Title         string `json:"job_title"`
	Company       string `json:"company_name"`
	Location      string `json:"job_location"`
	Salary        string `json:"job_salary_range"`
	PostedDate    string `json:"job_posted_date"`
	URL           string `json:"job_url"`
}

type runResponse struct {
	Ok        bool   `json:"ok"`
	Message   string `json:"message"`
	CSVPath   string `json:"csv_path"`
	StartedAt string `json:"started_at"`
	EndedAt   string `json:"ended_at"`
	Results   []row  `json:"results,omitempty"`
}

type streamEvent struct {
	Type string `json:"type"` // "log" | "otp" | "done"
	Msg  string `json:"msg,omitempty"`
	Data any    `json:"data,omitempty"`
}

const otpPrompt = "Enter OTP: "

var otpFormat = regexp.MustCompile(`^\d{6}$`)

//go:embed index.html
var indexHTML string

var pageTmpl = template.Must(template.New("index").Parse(indexHTML))

// =================== SERVER ===================

type server struct {
	crawlerBin string
	outDir     string // every crawl exports here and downloads are confined to it
	log        *logrus.Logger

	mu      sync.Mutex
	running bool
	stdin   io.WriteCloser // stdin of the running crawler, nil until started
}

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	outDir := flag.String("out-dir", "exports", "directory the crawler exports into")
	flag.Parse()

	_ = godotenv.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "02-01-2006 15:04:05"})

	s := &server{crawlerBin: os.Getenv("CRAWLER_BIN"), outDir: *outDir, log: log}

	log.WithField("addr", *addr).Info("web runner listening")
	if err := http.ListenAndServe(*addr, s.routes()); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", handleIndex)
	mux.HandleFunc("/run", s.handleRun)
	mux.HandleFunc("/otp", s.handleOTP)
	mux.HandleFunc("/download", s.handleDownload)
	return mux
}

func handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = pageTmpl.Execute(w, nil)
}

// handleDownload serves a file from the export directory. Only the base
// name of the requested path is used.
func (s *server) handleDownload(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		http.Error(w, "empty path", http.StatusBadRequest)
		return
	}
	full, ok := s.exportFile(path)
	if !ok {
		http.Error(w, "only export files can be downloaded", http.StatusForbidden)
		return
	}
	st, err := os.Stat(full)
	if err != nil || !st.Mode().IsRegular() {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Disposition", "attachment; filename="+filepath.Base(full))
	http.ServeFile(w, r, full)
}

// exportFile maps a requested path onto the export directory.
func (s *server) exportFile(path string) (string, bool) {
	name := filepath.Base(filepath.Clean(path))
	if ext := filepath.Ext(name); ext != ".csv" && ext != ".gz" {
		return "", false
	}
	root, err := filepath.Abs(s.outDir)
	if err != nil {
		return "", false
	}
	full := filepath.Join(root, name)
	rel, err := filepath.Rel(root, full)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") || strings.ContainsRune(rel, filepath.Separator) {
		return "", false
	}
	return full, true
}

// eventWriter serialises NDJSON events from the stdout and stderr readers.
type eventWriter struct {
	mu sync.Mutex
	w  http.ResponseWriter
}

func (e *eventWriter) write(ev streamEvent) {
	b, _ := json.Marshal(ev)
	e.mu.Lock()
	defer e.mu.Unlock()
	_, _ = e.w.Write(b)
	_, _ = e.w.Write([]byte("\n"))
	if f, ok := e.w.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	w.Header().Set("Content-Type", "application/x-ndjson; charset=utf-8")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("Cache-Control", "no-cache")
	ew := &eventWriter{w: w}

	var p runPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		ew.write(streamEvent{Type: "log", Msg: fmt.Sprintf("invalid payload: %v", err)})
		ew.write(streamEvent{Type: "done", Data: runResponse{Ok: false, Message: "invalid payload"}})
		return
	}
	if strings.TrimSpace(p.Email) == "" || strings.TrimSpace(p.Keywords) == "" {
		ew.write(streamEvent{Type: "log", Msg: "Fill in email and keywords."})
		ew.write(streamEvent{Type: "done", Data: runResponse{Ok: false, Message: "missing required fields"}})
		return
	}
	if !s.claim() {
		ew.write(streamEvent{Type: "done", Data: runResponse{Ok: false, Message: "a crawl is already running"}})
		return
	}
	defer s.release()

	start := time.Now()
	ew.write(streamEvent{Type: "log", Msg: fmt.Sprintf("Starting crawler for %q ...", p.Keywords)})

	// CRAWLER_BIN runs a built binary; otherwise fall back to go run.
	args := crawlerArgs(p, s.outDir)
	var cmd *exec.Cmd
	if bin := s.crawlerBin; bin != "" {
		if st, err := os.Stat(bin); err == nil && !st.IsDir() {
			ew.write(streamEvent{Type: "log", Msg: fmt.Sprintf("Runner: %s %s", bin, strings.Join(maskArgs(args), " "))})
			cmd = exec.CommandContext(ctx, bin, args...)
		} else {
			ew.write(streamEvent{Type: "log", Msg: fmt.Sprintf("Warning: CRAWLER_BIN=%q not found, using 'go run'.", bin)})
		}
	}
	if cmd == nil {
		goArgs := append([]string{"run", "./cmd/crawler"}, args...)
		ew.write(streamEvent{Type: "log", Msg: fmt.Sprintf("Runner: go %s", strings.Join(maskArgs(goArgs), " "))})
		cmd = exec.CommandContext(ctx, "go", goArgs...)
	}

	stdin, _ := cmd.StdinPipe()
	stdout, _ := cmd.StdoutPipe()
	stderr, _ := cmd.StderrPipe()
	s.attach(stdin)

	if err := cmd.Start(); err != nil {
		ew.write(streamEvent{Type: "log", Msg: fmt.Sprintf("Failed to start: %v", err)})
		ew.write(streamEvent{Type: "done", Data: runResponse{Ok: false, Message: err.Error(), StartedAt: start.Format(time.RFC3339)}})
		return
	}
	s.log.WithFields(logrus.Fields{"keywords": p.Keywords, "pid": cmd.Process.Pid}).Info("crawler started")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		sc := bufio.NewScanner(stdout)
		sc.Split(scanLinesOrPrompt)
		for sc.Scan() {
			line := sc.Text()
			if strings.HasSuffix(line, otpPrompt) {
				ew.write(streamEvent{Type: "otp", Msg: line})
				continue
			}
			ew.write(streamEvent{Type: "log", Msg: line})
		}
	}()
	go func() {
		defer wg.Done()
		sc := bufio.NewScanner(stderr)
		for sc.Scan() {
			ew.write(streamEvent{Type: "log", Msg: sc.Text()})
		}
	}()

	wg.Wait()
	waitErr := cmd.Wait()

	csvPath := findLatestCSV(s.outDir)
	var preview []row
	if csvPath != "" {
		if rows, err := readCSVLimited(csvPath, 200); err == nil {
			preview = rows
		} else {
			ew.write(streamEvent{Type: "log", Msg: fmt.Sprintf("Warning: could not preview CSV: %v", err)})
		}
	}

	msg := "ok"
	if waitErr != nil {
		msg = waitErr.Error()
	}
	s.log.WithFields(logrus.Fields{"ok": waitErr == nil, "csv": csvPath}).Info("crawler finished")
	ew.write(streamEvent{
		Type: "done",
		Data: runResponse{
			Ok:        waitErr == nil,
			Message:   msg,
			CSVPath:   csvPath,
			StartedAt: start.Format(time.RFC3339),
			EndedAt:   time.Now().Format(time.RFC3339),
			Results:   preview,
		},
	})
}

func (s *server) claim() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

func (s *server) attach(stdin io.WriteCloser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stdin = stdin
}

func (s *server) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stdin != nil {
		_ = s.stdin.Close()
		s.stdin = nil
	}
	s.running = false
}

// handleOTP forwards the code typed in the page to the crawler waiting at
// its OTP prompt.
func (s *server) handleOTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	code := strings.TrimSpace(body.Code)
	if !otpFormat.MatchString(code) {
		http.Error(w, "the code must be 6 digits", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stdin == nil {
		http.Error(w, "no crawl is waiting for a code", http.StatusConflict)
		return
	}
	if _, err := io.WriteString(s.stdin, code+"\n"); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func crawlerArgs(p runPayload, outDir string) []string {
	args := []string{
		"--email", strings.TrimSpace(p.Email),
		"--keywords", strings.TrimSpace(p.Keywords),
		"--out-dir", outDir,
		"--log-console",
	}
	if p.Location != "" {
		args = append(args, "--location", p.Location)
	}
	if p.Engine != "" {
		args = append(args, "--engine", p.Engine)
	}
	if p.Headless {
		args = append(args, "--headless")
	}
	if p.Batch {
		args = append(args, "--batch")
	}
	if p.OTPSource != "" {
		args = append(args, "--otp-source", p.OTPSource)
	}
	return args
}

// scanLinesOrPrompt splits on newlines and also ends a token right after
// the OTP prompt, which is printed without one.
func scanLinesOrPrompt(data []byte, atEOF bool) (int, []byte, error) {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		if p := bytes.Index(data[:i], []byte(otpPrompt)); p >= 0 {
			end := p + len(otpPrompt)
			return end, data[:end], nil
		}
		return i + 1, bytes.TrimRight(data[:i], "\r"), nil
	}
	if p := bytes.Index(data, []byte(otpPrompt)); p >= 0 {
		end := p + len(otpPrompt)
		return end, data[:end], nil
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func maskArgs(args []string) []string {
	out := make([]string, len(args))
	copy(out, args)
	for i := 0; i < len(out)-1; i++ {
		if out[i] == "--email" {
			out[i+1] = maskEmail(out[i+1])
		}
	}
	return out
}

func maskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 1 {
		return "********"
	}
	return email[:1] + strings.Repeat("*", at-1) + email[at:]
}

// findLatestCSV picks the newest main export (or no-data placeholder) by
// the timestamp in its name.
func findLatestCSV(outDir string) string {
	entries, err := filepath.Glob(filepath.Join(outDir, "*.csv"))
	if err != nil || len(entries) == 0 {
		return ""
	}
	stamp := func(p string) string {
		base := strings.TrimSuffix(filepath.Base(p), ".csv")
		parts := strings.Split(base, "_")
		if len(parts) < 2 {
			return ""
		}
		return strings.Join(parts[len(parts)-2:], "_")
	}
	sort.SliceStable(entries, func(i, j int) bool { return stamp(entries[i]) > stamp(entries[j]) })
	return entries[0]
}

func readCSVLimited(path string, limit int) ([]row, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	b = bytes.TrimPrefix(b, []byte{0xEF, 0xBB, 0xBF})

	r := csv.NewReader(bytes.NewReader(b))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	if len(records[0]) == 1 {
		return nil, errors.New(records[0][0])
	}

	idx := map[string]int{}
	for i, h := range records[0] {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	var out []row
	for i := 1; i < len(records) && (limit <= 0 || len(out) < limit); i++ {
		rec := records[i]
		get := func(k string) string {
			j, ok := idx[k]
			if !ok || j >= len(rec) {
				return ""
			}
			return rec[j]
		}
		out = append(out, row{
			ID:            get("id"),
			SearchKeyword: get("search_keyword"),
			Title:         get("job_title"),
			Company:       get("company_name"),
			Location:      get("job_location"),
			Salary:        get("job_salary_range"),
			PostedDate:    get("job_posted_date"),
			URL:           get("job_url"),
		})
	}
	return out, nil
}

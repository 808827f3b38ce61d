// Package wpcli drives the WordPress command line tool for the operations
// that go through WordPress itself: listing attachments, exporting the
// database and flushing the object cache.
package wpcli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/cognicore/mediacat/pkg/mediacat/internalerr"
	"github.com/cognicore/mediacat/pkg/mediacat/match"
)

// Runner executes name with args inside dir and returns its stdout.
type Runner func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

// Client runs wp-cli against one WordPress install
type Client struct {
	Bin string // executable, "wp" when empty
	Dir string // WordPress root
	Run Runner
	log *zap.Logger
}

// New returns a client using the real executable.
func New(bin, dir string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{Bin: bin, Dir: dir, Run: ExecRunner, log: log}
}

// ExecRunner runs the command through os/exec, folding stderr into the error.
func ExecRunner(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s not found, install WordPress CLI", internalerr.ErrCommandFailed, name)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s %s: %v: %s", internalerr.ErrCommandFailed, name, strings.Join(args, " "), err, msg)
		}
		return nil, fmt.Errorf("%w: %s %s: %v", internalerr.ErrCommandFailed, name, strings.Join(args, " "), err)
	}
	return stdout.Bytes(), nil
}

func (c *Client) run(ctx context.Context, args ...string) ([]byte, error) {
	bin := c.Bin
	if bin == "" {
		bin = "wp"
	}
	run := c.Run
	if run == nil {
		run = ExecRunner
	}
	c.logger().Debug("executing", zap.String("cmd", bin+" "+strings.Join(args, " ")), zap.String("dir", c.Dir))
	return run(ctx, c.Dir, bin, args...)
}

func (c *Client) logger() *zap.Logger {
	if c.log == nil {
		return zap.NewNop()
	}
	return c.log
}

type attachment struct {
	ID    json.Number `json:"ID"`
	Title string      `json:"post_title"`
	GUID  string      `json:"guid"`
}

// ListAttachments returns every attachment, or the first limit when limit > 0.
func (c *Client) ListAttachments(ctx context.Context, limit int) ([]match.Object, error) {
	if st, err := os.Stat(c.Dir); err != nil || !st.IsDir() {
		return nil, fmt.Errorf("%w: WordPress path does not exist: %s", internalerr.ErrInvalidConfig, c.Dir)
	}

	args := []string{"post", "list", "--post_type=attachment", "--format=json", "--fields=ID,post_title,guid"}
	if limit > 0 {
		args = append(args, fmt.Sprintf("--posts_per_page=%d", limit))
	}
	out, err := c.run(ctx, args...)
	if err != nil {
		return nil, err
	}

	var raw []attachment
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON from wp-cli: %v", internalerr.ErrCommandFailed, err)
	}

	objects := make([]match.Object, 0, len(raw))
	for _, a := range raw {
		id, err := a.ID.Int64()
		if err != nil {
			return nil, fmt.Errorf("%w: attachment id %q", internalerr.ErrInvalidInput, a.ID)
		}
		objects = append(objects, match.Object{
			ID:       id,
			Filename: Filename(a.GUID),
			Title:    stripHTML(a.Title),
		})
	}
	c.logger().Debug("fetched attachments", zap.Int("count", len(objects)))
	return objects, nil
}

// ExportDB writes a database dump to dest.
func (c *Client) ExportDB(ctx context.Context, dest string) error {
	if dir := filepath.Dir(dest); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("cannot create backup directory %s: %w", dir, err)
		}
	}
	abs, err := filepath.Abs(dest)
	if err != nil {
		return err
	}
	_, err = c.run(ctx, "db", "export", abs)
	return err
}

// FlushCache clears the WordPress object cache.
func (c *Client) FlushCache(ctx context.Context) error {
	_, err := c.run(ctx, "cache", "flush")
	return err
}

// Filename is the last path segment of an attachment URL, percent-decoded.
// A URL without a file path (e.g. "/?attachment_id=5") yields the raw text
// after its last slash.
func Filename(guid string) string {
	if u, err := url.Parse(guid); err == nil && u.Path != "" && !strings.HasSuffix(u.Path, "/") {
		return path.Base(u.Path)
	}
	return path.Base(guid)
}

var tagPattern = regexp.MustCompile(`</?[A-Za-z][^<>]*>`)

// stripHTML turns a post title into plain text. Entities are always
// decoded; markup is removed only when the title contains a real tag.
func stripHTML(s string) string {
	if !tagPattern.MatchString(s) {
		return html.UnescapeString(s)
	}
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return s
	}

	var buf strings.Builder
	var extractText func(*html.Node)
	extractText = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extractText(c)
		}
	}
	extractText(doc)

	return strings.TrimSpace(buf.String())
}

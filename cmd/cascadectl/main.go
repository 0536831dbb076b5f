// Command cascadectl talks to the cascade service: list specifications,
// preview a delete, run it and fetch its backup snapshot.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/animus-labs/cascade/internal/platform/auth"
	"github.com/animus-labs/cascade/internal/platform/requestid"
)

type apiClient struct {
	baseURL   string
	token     string
	requestID string
	secret    string
	identity  auth.Identity
	http      *http.Client
	now       func() time.Time
}

func (c *apiClient) do(req *http.Request) ([]byte, error) {
	if c.requestID != "" {
		req.Header.Set("X-Request-Id", c.requestID)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.secret != "" {
		if err := auth.SignRequest(req, c.secret, c.identity, c.now()); err != nil {
			return nil, fmt.Errorf("sign request: %w", err)
		}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return body, fmt.Errorf("http %s %s: status=%d body=%s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func (c *apiClient) get(path string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req)
}

func (c *apiClient) post(path string, in any) ([]byte, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// optionFlags collects repeated -o key=value flags.
type optionFlags map[string]string

func (o optionFlags) String() string {
	parts := make([]string, 0, len(o))
	for k, v := range o {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (o optionFlags) Set(v string) error {
	key, value, ok := strings.Cut(v, "=")
	if !ok || strings.TrimSpace(key) == "" {
		return fmt.Errorf("option %q must be key=value", v)
	}
	o[strings.TrimSpace(key)] = value
	return nil
}

const usage = `usage: cascadectl [flags] <command> [args]

commands:
  specs                                 list delete specifications
  plan <spec> <root-id> [-o k=v]        preview a delete
  delete <spec> <root-id> [-o k=v] [-backup=true|false] -yes
  backup <spec> <root-id> <run-id>      print a run's backup snapshot
`

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("cascadectl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		baseURL   = fs.String("url", envOr("CASCADE_URL", "http://localhost:8090"), "cascade service base URL")
		token     = fs.String("token", envOr("CASCADE_BEARER_TOKEN", ""), "bearer token (OIDC mode)")
		secret    = fs.String("secret", envOr("CASCADE_INTERNAL_AUTH_SECRET", ""), "sign requests with the gateway secret")
		subject   = fs.String("subject", envOr("CASCADE_SUBJECT", os.Getenv("USER")), "subject for signed requests")
		roles     = fs.String("roles", envOr("CASCADE_ROLES", auth.RoleViewer), "comma separated roles for signed requests")
		requestID = fs.String("request-id", "", "X-Request-Id for correlation")
	)
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w\n%s", err, usage)
	}
	if fs.NArg() == 0 {
		return errors.New(usage)
	}

	rid := strings.TrimSpace(*requestID)
	if rid == "" {
		rid = requestid.New()
	}
	client := &apiClient{
		baseURL:   strings.TrimRight(strings.TrimSpace(*baseURL), "/"),
		token:     strings.TrimSpace(*token),
		requestID: rid,
		secret:    strings.TrimSpace(*secret),
		identity:  auth.Identity{Subject: strings.TrimSpace(*subject), Roles: splitRoles(*roles)},
		http:      &http.Client{Timeout: 10 * time.Minute},
		now:       time.Now,
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	var (
		body []byte
		err  error
	)
	switch cmd {
	case "specs":
		body, err = client.get("/specs")
	case "plan":
		body, err = planCommand(client, rest)
	case "delete":
		body, err = deleteCommand(client, rest)
	case "backup":
		body, err = backupCommand(client, rest)
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
	if err != nil {
		return err
	}
	return printJSON(stdout, body)
}

func planCommand(c *apiClient, args []string) ([]byte, error) {
	fs := flag.NewFlagSet("plan", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	opts := optionFlags{}
	fs.Var(opts, "o", "option key=value (repeatable)")
	spec, rootID, rest, err := specAndRoot(fs, args)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("plan: unexpected arguments %v", rest)
	}
	q := url.Values{}
	q.Set("root_id", strconv.FormatInt(rootID, 10))
	for k, v := range opts {
		q.Set("option."+k, v)
	}
	return c.get("/specs/" + url.PathEscape(spec) + "/plan?" + q.Encode())
}

func deleteCommand(c *apiClient, args []string) ([]byte, error) {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	opts := optionFlags{}
	fs.Var(opts, "o", "option key=value (repeatable)")
	backup := fs.String("backup", "", "override the service backup default (true|false)")
	yes := fs.Bool("yes", false, "confirm the delete")
	spec, rootID, rest, err := specAndRoot(fs, args)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("delete: unexpected arguments %v", rest)
	}
	if !*yes {
		return nil, fmt.Errorf("delete %s %d: refusing without -yes; run plan first", spec, rootID)
	}
	req := map[string]any{"root_id": rootID}
	if len(opts) > 0 {
		req["options"] = map[string]string(opts)
	}
	if *backup != "" {
		b, err := strconv.ParseBool(*backup)
		if err != nil {
			return nil, fmt.Errorf("delete: -backup: %w", err)
		}
		req["backup"] = b
	}
	return c.post("/specs/"+url.PathEscape(spec)+"/deletes", req)
}

func backupCommand(c *apiClient, args []string) ([]byte, error) {
	if len(args) != 3 {
		return nil, errors.New("backup: want <spec> <root-id> <run-id>")
	}
	rootID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || rootID <= 0 {
		return nil, fmt.Errorf("backup: invalid root id %q", args[1])
	}
	return c.get("/specs/" + url.PathEscape(args[0]) + "/backups/" + strconv.FormatInt(rootID, 10) + "/" + url.PathEscape(args[2]))
}

// specAndRoot reads "<spec> <root-id>" followed by flags.
func specAndRoot(fs *flag.FlagSet, args []string) (string, int64, []string, error) {
	if len(args) < 2 {
		return "", 0, nil, fmt.Errorf("%s: want <spec> <root-id>", fs.Name())
	}
	rootID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || rootID <= 0 {
		return "", 0, nil, fmt.Errorf("%s: invalid root id %q", fs.Name(), args[1])
	}
	if err := fs.Parse(args[2:]); err != nil {
		return "", 0, nil, fmt.Errorf("%s: %w", fs.Name(), err)
	}
	return args[0], rootID, fs.Args(), nil
}

func splitRoles(raw string) []string {
	var out []string
	for _, r := range strings.Split(raw, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

func printJSON(w io.Writer, body []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err != nil {
		_, err = w.Write(body)
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "cascadectl:", err)
		os.Exit(1)
	}
}

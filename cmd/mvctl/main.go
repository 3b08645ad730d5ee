// Command mvctl is an operator tool for the media vault broker: it mints
// development identity tokens and runs the internal access checks.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/spf13/pflag"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/and161185/media-vault/internal/identity"
	"github.com/and161185/media-vault/internal/model"
	grpcserver "github.com/and161185/media-vault/internal/server/grpc"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const usageText = `mvctl
Usage:
  mvctl <cmd> [flags]

Commands:
  version
  sign         --sub <uuid> [--email a@b --verified] [--ttl 15m]   (key: --jwt-key or MEDIAVAULT_JWT_KEY)
  check-media  --token <t> --resource <id>
  check-share  --token <t> --resource <id>
  check-vault  --token <t> --user <uuid>

Check commands accept --addr, --cacert, --tls, --skip-verify.
`

// ---- grpc dial ----

type dialFlags struct {
	addr       string
	caPath     string
	useTLS     bool
	skipVerify bool
}

func (d *dialFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&d.addr, "addr", "localhost:9090", "broker gRPC address")
	fs.StringVar(&d.caPath, "cacert", "", "CA cert (PEM); implies --tls")
	fs.BoolVar(&d.useTLS, "tls", false, "use TLS")
	fs.BoolVar(&d.skipVerify, "skip-verify", false, "skip cert verify (dev)")
}

func loadTLS(d dialFlags) (credentials.TransportCredentials, error) {
	if !d.useTLS && d.caPath == "" {
		return insecure.NewCredentials(), nil
	}
	if d.skipVerify {
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil //nolint:gosec // opt-in dev flag
	}
	if d.caPath == "" {
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(d.caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool}), nil
}

func dial(d dialFlags) (*grpc.ClientConn, error) {
	creds, err := loadTLS(d)
	if err != nil {
		return nil, err
	}
	return grpc.NewClient(d.addr, grpc.WithTransportCredentials(creds))
}

// ---- utils ----

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// rpcError renders a gRPC status as "Code: message".
func rpcError(err error) error {
	if st, ok := status.FromError(err); ok {
		return fmt.Errorf("%s: %s", st.Code(), st.Message())
	}
	return err
}

// ---- commands ----

func cmdSign(args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("sign", pflag.ContinueOnError)
	sub := fs.String("sub", "", "user id")
	email := fs.String("email", "", "email claim")
	verified := fs.Bool("verified", false, "mark the email verified")
	ttl := fs.Duration("ttl", 15*time.Minute, "token lifetime")
	key := fs.String("jwt-key", os.Getenv("MEDIAVAULT_JWT_KEY"), "HS256 signing key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *key == "" {
		return errors.New("missing --jwt-key")
	}
	id, err := uuid.FromString(*sub)
	if err != nil || id == uuid.Nil {
		return errors.New("--sub must be a non-nil uuid")
	}
	tok, err := identity.Sign([]byte(*key), model.Identity{UserID: id, Email: *email, EmailVerified: *verified}, time.Now(), *ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, tok)
	return err
}

func cmdCheck(ctx context.Context, name string, args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	var d dialFlags
	d.register(fs)
	token := fs.String("token", "", "bearer token to check")
	resource := fs.String("resource", "", "resource id (check-media, check-share)")
	user := fs.String("user", "", "user id (check-vault)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *token == "" {
		return errors.New("missing --token")
	}

	conn, err := dial(d)
	if err != nil {
		return err
	}
	defer conn.Close()
	c := grpcserver.NewClient(conn)

	var resp any
	switch name {
	case "check-media":
		resp, err = c.CheckMedia(ctx, *token, *resource)
	case "check-share":
		resp, err = c.CheckShare(ctx, *token, *resource)
	case "check-vault":
		resp, err = c.CheckVault(ctx, *token, *user)
	}
	if err != nil {
		return rpcError(err)
	}
	printJSON(stdout, resp)
	return nil
}

// run dispatches a subcommand and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprint(stderr, usageText)
		return 2
	}
	var err error
	switch cmd := args[0]; cmd {
	case "version":
		fmt.Fprintf(stdout, "mvctl %s (%s)\n", version, buildDate)
	case "sign":
		err = cmdSign(args[1:], stdout)
	case "check-media", "check-share", "check-vault":
		err = cmdCheck(ctx, cmd, args[1:], stdout)
	default:
		fmt.Fprint(stderr, usageText)
		return 2
	}
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

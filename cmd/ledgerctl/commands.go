package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/subcommands"
	"golang.org/x/crypto/bcrypt"

	"github.com/Markhorcapital/ledger-listener/internal/ledger"
	"github.com/Markhorcapital/ledger-listener/internal/transport/httpapi/middleware"
	"github.com/Markhorcapital/ledger-listener/pkg/config"
	"github.com/Markhorcapital/ledger-listener/pkg/secret"
)

type tokenCmd struct {
	client string
	ttl    time.Duration
}

func (*tokenCmd) Name() string     { return "token" }
func (*tokenCmd) Synopsis() string { return "mint a service token signed with JWT_SECRET" }
func (*tokenCmd) Usage() string {
	return `ledgerctl token -client <name> [-ttl 720h]

  Prints an HS256 bearer token for the named client. JWT_SECRET must be set
  to the value the server runs with.
`
}

func (c *tokenCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.client, "client", "", "Client name written to the token subject.")
	f.DurationVar(&c.ttl, "ttl", 30*24*time.Hour, "Token lifetime.")
}

func (c *tokenCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	secretKey := os.Getenv("JWT_SECRET")
	if len(secretKey) < 32 {
		fmt.Fprintln(os.Stderr, "JWT_SECRET must be set and at least 32 characters long")
		return subcommands.ExitFailure
	}
	if c.client == "" || c.ttl <= 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	token, err := middleware.NewTokenService(secretKey).GenerateToken(c.client, c.ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Println(token)
	return subcommands.ExitSuccess
}

type hashCmd struct {
	bcrypt bool
	cost   int
}

func (*hashCmd) Name() string     { return "hash-token" }
func (*hashCmd) Synopsis() string { return "hash an API token for AUTH_TOKEN_HASH" }
func (*hashCmd) Usage() string {
	return `ledgerctl hash-token [-bcrypt [-cost 12]] < token.txt

  Reads the token from stdin and prints its sha256 digest, or with -bcrypt a
  bcrypt hash of that digest. Tokens of any length are accepted.
`
}

func (c *hashCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.bcrypt, "bcrypt", false, "Wrap the digest in a bcrypt hash.")
	f.IntVar(&c.cost, "cost", 12, "bcrypt cost.")
}

func (c *hashCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	token, err := readLine(os.Stdin)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	hash, err := hashToken(token, c.bcrypt, c.cost)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Println(hash)
	return subcommands.ExitSuccess
}

func hashToken(token string, useBcrypt bool, cost int) (string, error) {
	digest := middleware.HashToken(token)
	if !useBcrypt {
		return digest, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(digest), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

type encryptCmd struct{}

func (*encryptCmd) Name() string     { return "encrypt-secret" }
func (*encryptCmd) Synopsis() string { return "encrypt an exchange API secret for the accounts table" }
func (*encryptCmd) Usage() string {
	return `ledgerctl encrypt-secret < secret.txt

  Reads the API secret from stdin and prints the iv:data ciphertext keyed by
  CREDENTIAL_SECRET.
`
}

func (*encryptCmd) SetFlags(*flag.FlagSet) {}

func (*encryptCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	shared := os.Getenv("CREDENTIAL_SECRET")
	if shared == "" {
		fmt.Fprintln(os.Stderr, "CREDENTIAL_SECRET must be set")
		return subcommands.ExitFailure
	}

	plain, err := readLine(os.Stdin)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	enc, err := secret.NewCipher(shared).Encrypt(plain)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Println(enc)
	return subcommands.ExitSuccess
}

type topologyCmd struct {
	path string
}

func (*topologyCmd) Name() string     { return "check-topology" }
func (*topologyCmd) Synopsis() string { return "validate a topology file and print both sheet headers" }
func (*topologyCmd) Usage() string {
	return `ledgerctl check-topology [-f config/topology.yml]
`
}

func (c *topologyCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.path, "f", "config/topology.yml", "Topology file.")
}

func (c *topologyCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := checkTopology(c.path, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func checkTopology(path string, w io.Writer) error {
	topology, err := config.LoadTopology(path)
	if err != nil {
		return err
	}
	cex, err := ledger.NewCEXLayout(topology.Ledger.CEX)
	if err != nil {
		return fmt.Errorf("cex layout: %w", err)
	}
	onchain, err := ledger.NewOnchainLayout(topology.Ledger.Onchain, topology.Chains)
	if err != nil {
		return fmt.Errorf("onchain layout: %w", err)
	}

	fmt.Fprintf(w, "cex (%d columns):\n  %s\n", len(cex.Columns()), strings.Join(cex.Columns(), "\n  "))
	fmt.Fprintf(w, "onchain (%d columns):\n  %s\n", len(onchain.Columns()), strings.Join(onchain.Columns(), "\n  "))
	return nil
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("no input on stdin")
	}
	return line, nil
}

// optoken issues operator bearer tokens for the slotkeeper API, and can
// generate a fresh sealing identity for SEALING_IDENTITY.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/slotkeeper/server/internal/auth"
	"github.com/slotkeeper/server/internal/sealed"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	_ = godotenv.Load(".env")

	var (
		name        string
		role        string
		ttl         time.Duration
		secret      string
		newIdentity bool
	)
	flagSet := pflag.NewFlagSet("optoken", pflag.ContinueOnError)
	flagSet.StringVarP(&name, "name", "n", "", "operator name (token subject)")
	flagSet.StringVarP(&role, "role", "r", string(auth.RoleOperator), "operator role: admin or operator")
	flagSet.DurationVar(&ttl, "ttl", auth.DefaultTokenTTL, "token lifetime")
	flagSet.StringVar(&secret, "secret", "", "signing secret (default: $JWT_SECRET)")
	flagSet.BoolVar(&newIdentity, "new-sealing-identity", false, "print a new age identity for SEALING_IDENTITY and exit")

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if newIdentity {
		identity, recipient, err := sealed.GenerateIdentity()
		if err != nil {
			return err
		}
		fmt.Printf("# recipient: %s\nSEALING_IDENTITY=%s\n", recipient, identity)
		return nil
	}

	if secret == "" {
		secret = os.Getenv("JWT_SECRET")
	}
	if secret == "" {
		return fmt.Errorf("--secret or JWT_SECRET is required")
	}
	if name == "" {
		return fmt.Errorf("--name is required")
	}
	parsedRole, err := auth.ParseRole(role)
	if err != nil {
		return err
	}

	token, err := auth.NewJWTService(secret).SignOperatorToken(name, parsedRole, ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

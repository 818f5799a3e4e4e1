// Command devtoken prints an HS256 access token for a tenant, for local use
// against a server started with the same JWT_SECRET.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/wanzdb/wanzdb/internal/tokens"
)

func main() {
	_ = godotenv.Load(".env")

	pflag.StringP("tenant", "t", "", "tenant id placed in sub and user.id")
	pflag.Duration("ttl", time.Hour, "token lifetime")
	pflag.String("secret", "", "signing secret (default $JWT_SECRET)")
	pflag.Parse()

	viper.AutomaticEnv()
	_ = viper.BindPFlags(pflag.CommandLine)
	_ = viper.BindEnv("secret", "JWT_SECRET")

	tenant := viper.GetString("tenant")
	secret := viper.GetString("secret")
	if tenant == "" || secret == "" {
		fmt.Fprintln(os.Stderr, "usage: devtoken --tenant <id> [--ttl 1h] [--secret s]; JWT_SECRET is used when --secret is empty")
		os.Exit(2)
	}

	tok, err := tokens.GenerateAccessToken(secret, tenant, viper.GetDuration("ttl"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "devtoken: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(tok)
}

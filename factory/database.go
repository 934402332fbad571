package factory

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dsql/auth"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/jsonadm"
	"go.uber.org/zap"
)

// ConnectionString renders the postgres URL of config. The password is left out when
// IAM auth is enabled, each connection then gets a fresh token.
func ConnectionString(config jsonadm.DatabaseConfig) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(config.Host, strconv.Itoa(config.Port)),
		Path:   "/" + config.Database,
	}
	if config.UseIAM || config.Password == "" {
		u.User = url.User(config.Username)
	} else {
		u.User = url.UserPassword(config.Username, config.Password)
	}
	q := url.Values{}
	if config.SSLMode != "" {
		q.Set("sslmode", config.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// NewDatabasePool creates a PostgreSQL connection pool and pings it.
func NewDatabasePool(ctx context.Context, config jsonadm.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(ConnectionString(config))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(config.MaxConnections)
	poolConfig.MinConns = int32(config.MaxIdleConns)
	poolConfig.MaxConnLifetime = config.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = config.ConnMaxIdleTime
	poolConfig.ConnConfig.ConnectTimeout = config.Timeout

	if config.UseIAM {
		creds, err := awsCredentials(ctx, config.Region)
		if err != nil {
			return nil, err
		}
		poolConfig.BeforeConnect = IAMTokenHook(config.Region, creds)
		// DSQL tokens expire, keep connections shorter lived than the token.
		if poolConfig.MaxConnLifetime == 0 || poolConfig.MaxConnLifetime > 10*time.Minute {
			poolConfig.MaxConnLifetime = 10 * time.Minute
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// IAMTokenHook returns a pgxpool BeforeConnect hook that sets an Aurora DSQL auth token
// as the password of every new connection.
func IAMTokenHook(region string, creds aws.CredentialsProvider) func(context.Context, *pgx.ConnConfig) error {
	return func(ctx context.Context, cc *pgx.ConnConfig) error {
		endpoint := net.JoinHostPort(cc.Host, strconv.Itoa(int(cc.Port)))
		token, err := auth.GenerateDbConnectAuthToken(ctx, endpoint, region, creds)
		if err != nil {
			return fmt.Errorf("failed to generate IAM auth token: %w", err)
		}
		cc.Password = token
		zap.S().Debugw("generated IAM auth token for Postgres connection (dsql)", "endpoint", endpoint)
		return nil
	}
}

func awsCredentials(ctx context.Context, region string) (aws.CredentialsProvider, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if key := os.Getenv("AWS_ACCESS_KEY_ID"); key != "" {
		awsCfg.Credentials = awscreds.NewStaticCredentialsProvider(key, os.Getenv("AWS_SECRET_ACCESS_KEY"), os.Getenv("AWS_SESSION_TOKEN"))
	}
	return awsCfg.Credentials, nil
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-storefront/internal/cart"
	"github.com/noah-isme/toko-storefront/internal/storage"
)

// cartdump decrypts and prints the persisted cart for a session.
// Exit code 0 = printed, 1 = no record, 2 = other error.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	fs := flag.NewFlagSet("cartdump", flag.ExitOnError)
	backend := fs.String("backend", envOr("STORAGE_BACKEND", storage.BackendFile), "storage backend: file|redis|postgres")
	dir := fs.String("dir", envOr("STORAGE_DIR", "./data/storefront"), "directory for the file backend")
	redisURL := fs.String("redis", os.Getenv("REDIS_URL"), "redis url for the redis backend")
	databaseURL := fs.String("db", os.Getenv("DATABASE_URL"), "database url for the postgres backend")
	variant := fs.String("variant", envOr("CART_VARIANT", "sale"), "cart variant: sale|cart")
	sessionID := fs.String("session", "", "session id whose cart to print")
	key := fs.String("key", "", "raw storage key; overrides -session and -variant")
	remove := fs.Bool("remove", false, "delete the record after printing it")
	_ = fs.Parse(os.Args[1:])

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	code, err := run(ctx, os.Stdout, options{
		Backend:     *backend,
		Dir:         *dir,
		RedisURL:    *redisURL,
		DatabaseURL: *databaseURL,
		Variant:     *variant,
		SessionID:   *sessionID,
		Key:         *key,
		Secret:      envOr("ENCRYPTION_KEY", "toko-storefront-development-only"),
		Remove:      *remove,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "cartdump: %v\n", err)
	}
	os.Exit(code)
}

type options struct {
	Backend     string
	Dir         string
	RedisURL    string
	DatabaseURL string
	Variant     string
	SessionID   string
	Key         string
	Secret      string
	Remove      bool
}

var errNoRecord = errors.New("no cart stored under key")

func run(ctx context.Context, out io.Writer, opts options) (int, error) {
	var client *redis.Client
	if opts.RedisURL != "" {
		redisOpts, err := redis.ParseURL(opts.RedisURL)
		if err != nil {
			return 2, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(redisOpts)
		defer func() { _ = client.Close() }()
	}

	inner, closeFn, err := storage.Open(ctx, storage.Options{
		Backend:     opts.Backend,
		Dir:         opts.Dir,
		Prefix:      "storefront:",
		Redis:       client,
		DatabaseURL: opts.DatabaseURL,
	})
	if err != nil {
		return 2, err
	}
	defer closeFn()

	sealed, err := storage.NewEncrypted(inner, opts.Secret, zerolog.New(os.Stderr))
	if err != nil {
		return 2, err
	}

	key := opts.Key
	if key == "" {
		key = cart.NewRegistry(nil, opts.Variant, zerolog.Nop()).KeyFor(opts.SessionID)
	}
	raw, err := sealed.Load(ctx, key)
	if err != nil {
		return 2, err
	}
	if raw == nil {
		return 1, fmt.Errorf("%w %q", errNoRecord, key)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return 2, fmt.Errorf("format record: %w", err)
	}
	pretty.WriteByte('\n')
	if _, err := out.Write(pretty.Bytes()); err != nil {
		return 2, err
	}

	if opts.Remove {
		if err := sealed.Remove(ctx, key); err != nil {
			return 2, fmt.Errorf("remove %q: %w", key, err)
		}
	}
	return 0, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

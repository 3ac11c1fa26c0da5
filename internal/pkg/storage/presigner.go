package storage

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/recscribe/internal/pkg/persistence"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/viper"
)

const (
	defaultExpire = time.Hour
	maxExpire     = 7 * 24 * time.Hour
)

// Options for the presigner
type Options struct {
	URL    string
	User   string
	Key    string
	Bucket string
	Secure bool
	Region string
	Expire time.Duration
}

// Presigner resolves recording audio into a location fetchable by the asr provider
type Presigner struct {
	client *minio.Client
	bucket string
	expire time.Duration
}

// NewPresigner creates minio based presigner
func NewPresigner(opts Options) (*Presigner, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("no storage url")
	}
	if opts.Bucket == "" {
		return nil, fmt.Errorf("no bucket")
	}
	if opts.Expire == 0 {
		opts.Expire = defaultExpire
	}
	if opts.Expire < time.Second || opts.Expire > maxExpire {
		return nil, fmt.Errorf("wrong expire %s, allowed [1s, %s]", opts.Expire, maxExpire)
	}
	client, err := minio.New(opts.URL, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.User, opts.Key, ""),
		Secure: opts.Secure,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("can't init minio client: %w", err)
	}
	goapp.Log.Info().Str("url", opts.URL).Str("bucket", opts.Bucket).Dur("expire", opts.Expire).Msg("storage")
	return &Presigner{client: client, bucket: opts.Bucket, expire: opts.Expire}, nil
}

// NewPresignerFromConfig creates presigner from the filer config section
func NewPresignerFromConfig(cfg *viper.Viper) (*Presigner, error) {
	if cfg == nil {
		return nil, fmt.Errorf("no filer config")
	}
	return NewPresigner(Options{URL: cfg.GetString("url"), User: cfg.GetString("user"),
		Key: cfg.GetString("key"), Bucket: cfg.GetString("bucket"), Secure: cfg.GetBool("https"),
		Region: cfg.GetString("region"), Expire: cfg.GetDuration("expire")})
}

// AudioURL returns the direct audio url of the recording or presigns its object key
func (p *Presigner) AudioURL(ctx context.Context, rec *persistence.Recording) (string, error) {
	if rec.AudioURL != "" {
		return rec.AudioURL, nil
	}
	if rec.ObjectKey == "" {
		return "", fmt.Errorf("no audio for recording %s", rec.ID)
	}
	res, err := p.client.PresignedGetObject(ctx, p.bucket, rec.ObjectKey, p.expire, url.Values{})
	if err != nil {
		return "", fmt.Errorf("can't presign %s: %w", rec.ObjectKey, err)
	}
	return res.String(), nil
}

package ebs

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	eb "github.com/aws/aws-sdk-go-v2/service/elasticbeanstalk"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-logr/logr"
	"golang.org/x/time/rate"
	"k8s.io/klog/v2/klogr"
)

const (
	// DefaultPollInterval is the time between two environment polls while waiting.
	DefaultPollInterval = 10 * time.Second

	// DefaultDeleteInterval throttles application version deletion.
	DefaultDeleteInterval = 2 * time.Second

	// MaxRedSamples is the number of consecutive Ready and Red samples tolerated while waiting.
	MaxRedSamples = 20
)

// Helper runs deployment operations of a single Elastic Beanstalk application.
type Helper struct {
	AppName    string
	Bucket     string
	BucketPath string

	EBS      EBSAPI
	EC2      EC2API
	Uploader S3Uploader

	Logger logr.Logger

	PollInterval   time.Duration
	DeleteInterval time.Duration

	now func() time.Time
}

type Option interface {
	SetOption(h *Helper) error
}

type optionFunc func(h *Helper) error

func (f optionFunc) SetOption(h *Helper) error {
	return f(h)
}

func Logger(l logr.Logger) Option {
	return optionFunc(func(h *Helper) error {
		h.Logger = l
		return nil
	})
}

// Bucket sets the S3 bucket and key prefix archives are uploaded to.
func Bucket(bucket, path string) Option {
	return optionFunc(func(h *Helper) error {
		h.Bucket = bucket
		h.BucketPath = path
		return nil
	})
}

func PollInterval(d time.Duration) Option {
	return optionFunc(func(h *Helper) error {
		h.PollInterval = d
		return nil
	})
}

func DeleteInterval(d time.Duration) Option {
	return optionFunc(func(h *Helper) error {
		h.DeleteInterval = d
		return nil
	})
}

func Now(now func() time.Time) Option {
	return optionFunc(func(h *Helper) error {
		h.now = now
		return nil
	})
}

// New returns a Helper calling the given API clients.
func New(appName string, ebsAPI EBSAPI, ec2API EC2API, uploader S3Uploader, opts ...Option) (*Helper, error) {
	if appName == "" {
		return nil, fmt.Errorf("application name is required")
	}

	h := &Helper{
		AppName:        appName,
		EBS:            ebsAPI,
		EC2:            ec2API,
		Uploader:       uploader,
		PollInterval:   DefaultPollInterval,
		DeleteInterval: DefaultDeleteInterval,
	}

	for _, o := range opts {
		if err := o.SetOption(h); err != nil {
			return nil, err
		}
	}

	if h.Logger.GetSink() == nil {
		h.Logger = klogr.New()
	}

	if h.now == nil {
		h.now = time.Now
	}

	return h, nil
}

// NewFromConfig builds the AWS clients from cfg.
func NewFromConfig(cfg aws.Config, appName string, opts ...Option) (*Helper, error) {
	return New(appName,
		eb.NewFromConfig(cfg),
		ec2.NewFromConfig(cfg),
		manager.NewUploader(s3.NewFromConfig(cfg)),
		opts...,
	)
}

func limiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

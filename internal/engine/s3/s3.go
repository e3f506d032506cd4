// Package s3 implements the engine contract on top of Amazon S3 (or any
// S3-compatible endpoint), registered under the name "s3". Reads are served
// with ranged GetObject requests so PositionRead never fetches more than the
// caller asked for.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"golang.org/x/time/rate"

	"github.com/fsbridge/fsbridge/internal/logging"
	"github.com/fsbridge/fsbridge/internal/retry"
	"github.com/fsbridge/fsbridge/pkg/engine"
	"github.com/fsbridge/fsbridge/pkg/status"
)

func init() {
	engine.Register("s3", New)
}

// Configuration keys read from Options.Extra.
const (
	KeyBucket    = "fs.s3.bucket"
	KeyRegion    = "fs.s3.region"
	KeyEndpoint  = "fs.s3.endpoint"
	KeyPathStyle = "fs.s3.path.style"
	KeyAccessKey = "fs.s3.access.key"
	KeySecretKey = "fs.s3.secret.key"
	KeyMaxRPS    = "fs.s3.requests.per.second"
	KeyRetries   = "fs.s3.retry.attempts"
)

const defaultRegion = "us-east-1"

// FileSystem is one S3-backed engine connection.
type FileSystem struct {
	user      string
	opts      engine.Options
	bucket    string
	region    string
	endpoint  string
	pathStyle bool
	accessKey string
	secretKey string
	limiter   *rate.Limiter
	retryer   *retry.Retryer

	mu        sync.Mutex
	client    *awss3.Client
	connected bool

	fsCB   engine.FSEventCallback
	fileCB engine.FileEventCallback
}

// New constructs an unconnected S3 engine from the option set.
func New(user string, opts engine.Options) (engine.FileSystem, error) {
	fs := &FileSystem{
		user:      user,
		opts:      opts,
		bucket:    opts.Extra[KeyBucket],
		region:    opts.Extra[KeyRegion],
		endpoint:  opts.Extra[KeyEndpoint],
		pathStyle: opts.Extra[KeyPathStyle] == "true",
		accessKey: opts.Extra[KeyAccessKey],
		secretKey: opts.Extra[KeySecretKey],
	}
	if fs.bucket == "" {
		return nil, status.Newf(status.InvalidArgument, "%s is not configured", KeyBucket)
	}
	if fs.region == "" {
		fs.region = defaultRegion
	}
	if v := opts.Extra[KeyMaxRPS]; v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil || rps <= 0 {
			return nil, status.Newf(status.InvalidArgument, "invalid %s: %q", KeyMaxRPS, v)
		}
		fs.limiter = rate.NewLimiter(rate.Limit(rps), int(rps)+1)
	}
	attempts := 0
	if v := opts.Extra[KeyRetries]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, status.Newf(status.InvalidArgument, "invalid %s: %q", KeyRetries, v)
		}
		attempts = n
	}
	fs.retryer = retry.New(retry.Config{
		MaxAttempts: attempts,
		Jitter:      true,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			logging.Logf(logging.LevelWarn, logging.ComponentRPC, "s3 request failed (attempt %d), retrying in %s: %v", attempt, delay, err)
		},
	})
	return fs, nil
}

func (f *FileSystem) SetFSEventCallback(cb engine.FSEventCallback) {
	f.fsCB = cb
}

func (f *FileSystem) SetFileEventCallback(cb engine.FileEventCallback) {
	f.fileCB = cb
}

// Connect targets an explicit S3-compatible endpoint. Explicit addresses
// force path-style addressing since virtual-host routing needs DNS.
func (f *FileSystem) Connect(ctx context.Context, host, port string) error {
	f.endpoint = fmt.Sprintf("http://%s:%s", host, port)
	f.pathStyle = true
	return f.connect(ctx)
}

func (f *FileSystem) ConnectToDefault(ctx context.Context) error {
	return f.connect(ctx)
}

func (f *FileSystem) connect(ctx context.Context) error {
	if f.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.opts.ConnectTimeout)
		defer cancel()
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(f.region),
	}
	if f.accessKey != "" && f.secretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(f.accessKey, f.secretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return status.Newf(status.ResourceUnavailable, "load AWS config: %v", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if f.endpoint != "" {
			o.BaseEndpoint = aws.String(f.endpoint)
		}
		if f.pathStyle {
			o.UsePathStyle = true
		}
	})

	err = f.retryer.Do(ctx, func(ctx context.Context) error {
		if err := f.wait(ctx); err != nil {
			return err
		}
		if _, err := client.HeadBucket(ctx, &awss3.HeadBucketInput{Bucket: aws.String(f.bucket)}); err != nil {
			return f.translate(err, "HeadBucket", f.bucket)
		}
		return nil
	})
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.client = client
	f.connected = true
	f.mu.Unlock()

	cluster := f.clusterName()
	if f.fsCB != nil {
		if resp := f.fsCB(engine.FSConnectEvent, cluster, 0); resp.Err() != nil {
			f.mu.Lock()
			f.connected = false
			f.mu.Unlock()
			return resp.Err()
		}
	}
	logging.Logf(logging.LevelInfo, logging.ComponentFileSystem, "s3 engine connected to %s", cluster)
	return nil
}

func (f *FileSystem) clusterName() string {
	if f.endpoint != "" {
		return f.endpoint + "/" + f.bucket
	}
	return "s3://" + f.bucket
}

func (f *FileSystem) getClient() (*awss3.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected || f.client == nil {
		return nil, status.New(status.InvalidArgument, "filesystem is not connected")
	}
	return f.client, nil
}

// wait applies the configured request rate limit, if any.
func (f *FileSystem) wait(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return status.Newf(status.OperationCanceled, "rate limit wait: %v", err)
	}
	return nil
}

func (f *FileSystem) Open(ctx context.Context, p string) (engine.File, error) {
	client, err := f.getClient()
	if err != nil {
		return nil, err
	}
	key := pathToKey(p)
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	head, err := client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, f.translate(err, "HeadObject", key)
	}

	if f.fileCB != nil {
		if resp := f.fileCB(engine.FileConnectEvent, f.clusterName(), p, 0); resp.Err() != nil {
			return nil, resp.Err()
		}
	}
	logging.Logf(logging.LevelDebug, logging.ComponentFileHandle, "s3 engine opened %s (%d bytes)", key, aws.ToInt64(head.ContentLength))
	return &file{
		fs:   f,
		path: p,
		key:  key,
		size: aws.ToInt64(head.ContentLength),
	}, nil
}

func (f *FileSystem) Stat(ctx context.Context, p string) (engine.FileInfo, error) {
	client, err := f.getClient()
	if err != nil {
		return engine.FileInfo{}, err
	}
	key := pathToKey(p)
	if key == "" {
		return engine.FileInfo{Path: "/", Mode: 0o755, IsDir: true, Owner: f.user}, nil
	}
	if err := f.wait(ctx); err != nil {
		return engine.FileInfo{}, err
	}
	head, err := client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return engine.FileInfo{
			Path:    cleanPath(p),
			Size:    aws.ToInt64(head.ContentLength),
			Mode:    0o644,
			ModTime: aws.ToTime(head.LastModified),
			Owner:   f.user,
		}, nil
	}
	if !isNotFound(err) {
		return engine.FileInfo{}, f.translate(err, "HeadObject", key)
	}

	// not an object; a common-prefix match means it is a directory
	list, lerr := client.ListObjectsV2(ctx, &awss3.ListObjectsV2Input{
		Bucket:  aws.String(f.bucket),
		Prefix:  aws.String(key + "/"),
		MaxKeys: aws.Int32(1),
	})
	if lerr != nil {
		return engine.FileInfo{}, f.translate(lerr, "ListObjectsV2", key)
	}
	if len(list.Contents) > 0 || len(list.CommonPrefixes) > 0 {
		return engine.FileInfo{Path: cleanPath(p), Mode: 0o755, IsDir: true, Owner: f.user}, nil
	}
	return engine.FileInfo{}, status.Newf(status.InvalidArgument, "no such path: %s", p)
}

func (f *FileSystem) List(ctx context.Context, p string) ([]engine.FileInfo, error) {
	client, err := f.getClient()
	if err != nil {
		return nil, err
	}
	prefix := pathToKey(p)
	if prefix != "" {
		prefix += "/"
	}

	var out []engine.FileInfo
	var token *string
	for {
		if err := f.wait(ctx); err != nil {
			return nil, err
		}
		page, err := client.ListObjectsV2(ctx, &awss3.ListObjectsV2Input{
			Bucket:            aws.String(f.bucket),
			Prefix:            aws.String(prefix),
			Delimiter:         aws.String("/"),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, f.translate(err, "ListObjectsV2", prefix)
		}
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(aws.ToString(cp.Prefix), "/")
			out = append(out, engine.FileInfo{
				Path:  "/" + name,
				Mode:  0o755,
				IsDir: true,
				Owner: f.user,
			})
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == prefix {
				continue // placeholder object for the directory itself
			}
			out = append(out, engine.FileInfo{
				Path:    "/" + key,
				Size:    aws.ToInt64(obj.Size),
				Mode:    0o644,
				ModTime: aws.ToTime(obj.LastModified),
				Owner:   f.user,
			})
		}
		if !aws.ToBool(page.IsTruncated) {
			break
		}
		token = page.NextContinuationToken
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (f *FileSystem) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.client = nil
	f.connected = false
	return nil
}

// translate maps an SDK failure onto the shared status taxonomy.
func (f *FileSystem) translate(err error, operation, key string) error {
	switch {
	case isNotFound(err):
		return status.Newf(status.InvalidArgument, "no such object: %s", key)
	case isErrorType[*s3types.NoSuchBucket](err):
		return status.Newf(status.InvalidArgument, "no such bucket: %s", f.bucket)
	case errors.Is(err, context.Canceled):
		return status.Newf(status.OperationCanceled, "%s canceled for %s", operation, key)
	case errors.Is(err, context.DeadlineExceeded):
		return status.Newf(status.ResourceUnavailable, "%s timed out for %s", operation, key)
	case strings.Contains(err.Error(), "AccessDenied"), strings.Contains(err.Error(), "403"):
		return status.Newf(status.PermissionDenied, "%s denied for %s", operation, key)
	default:
		return status.Newf(status.ResourceUnavailable, "%s failed for %s: %v", operation, key, err)
	}
}

func isNotFound(err error) bool {
	return isErrorType[*s3types.NoSuchKey](err) || isErrorType[*s3types.NotFound](err)
}

// isErrorType checks if an error is of a specific type.
func isErrorType[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}

func pathToKey(p string) string {
	return strings.TrimPrefix(cleanPath(p), "/")
}

func cleanPath(p string) string {
	return path.Clean("/" + p)
}

type file struct {
	fs   *FileSystem
	path string
	key  string
	size int64

	mu       sync.Mutex
	pos      int64
	canceled bool
	cancels  map[int64]context.CancelFunc
	nextID   int64
}

func (fl *file) PositionRead(ctx context.Context, p []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, status.New(status.InvalidArgument, "negative read offset")
	}
	if len(p) == 0 {
		return 0, nil
	}

	fl.mu.Lock()
	if fl.canceled {
		fl.mu.Unlock()
		return 0, status.Newf(status.OperationCanceled, "read canceled on %s", fl.path)
	}
	ctx, cancel := context.WithCancel(ctx)
	id := fl.nextID
	fl.nextID++
	if fl.cancels == nil {
		fl.cancels = make(map[int64]context.CancelFunc)
	}
	fl.cancels[id] = cancel
	fl.mu.Unlock()

	defer func() {
		cancel()
		fl.mu.Lock()
		delete(fl.cancels, id)
		fl.mu.Unlock()
	}()

	var n int
	err := fl.fs.retryer.Do(ctx, func(ctx context.Context) error {
		var rerr error
		n, rerr = fl.readRange(ctx, p, offset)
		return rerr
	})
	if err != nil {
		return 0, err
	}
	if fl.fs.fileCB != nil {
		fl.fs.fileCB(engine.FileReadEvent, fl.fs.clusterName(), fl.path, int64(n))
	}
	return n, nil
}

func (fl *file) readRange(ctx context.Context, p []byte, offset int64) (int, error) {
	if offset >= fl.size {
		return 0, nil
	}
	if fl.fs.opts.IOTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, fl.fs.opts.IOTimeout)
		defer cancel()
	}
	client, err := fl.fs.getClient()
	if err != nil {
		return 0, err
	}
	if err := fl.fs.wait(ctx); err != nil {
		return 0, err
	}

	end := offset + int64(len(p)) - 1
	if end >= fl.size {
		end = fl.size - 1
	}
	out, err := client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(fl.fs.bucket),
		Key:    aws.String(fl.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", offset, end)),
	})
	if err != nil {
		return 0, fl.fs.translate(err, "GetObject", fl.key)
	}
	defer out.Body.Close()

	total := 0
	for total < len(p) {
		n, rerr := out.Body.Read(p[total:])
		total += n
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return 0, fl.fs.translate(rerr, "GetObject", fl.key)
		}
	}
	return total, nil
}

func (fl *file) Read(ctx context.Context, p []byte) (int, error) {
	fl.mu.Lock()
	pos := fl.pos
	fl.mu.Unlock()

	n, err := fl.PositionRead(ctx, p, pos)
	if err != nil {
		return 0, err
	}

	fl.mu.Lock()
	fl.pos = pos + int64(n)
	fl.mu.Unlock()
	return n, nil
}

func (fl *file) Seek(offset int64, whence int) (int64, error) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = fl.pos + offset
	case io.SeekEnd:
		next = fl.size + offset
	default:
		return 0, status.New(status.InvalidArgument, "invalid whence")
	}
	if next < 0 {
		return 0, status.New(status.InvalidArgument, "seek before start of file")
	}
	fl.pos = next
	return next, nil
}

// Cancel aborts in-flight reads and fails subsequent ones. Blocked readers
// observe the abort as an OperationCanceled error from their own call.
func (fl *file) Cancel() {
	fl.mu.Lock()
	fl.canceled = true
	for _, cancel := range fl.cancels {
		cancel()
	}
	fl.mu.Unlock()
}

func (fl *file) Close() error {
	fl.Cancel()
	return nil
}

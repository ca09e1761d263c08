package logger

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Domain uint8

const (
	UnknownDomain Domain = iota
	AllDomain
	InitDomain
	CLIDomain
	FetchDomain
	ArchiveDomain
	InstallDomain
	LaunchDomain
	ReleaseDomain
	LockDomain
	FileSystemDomain
	GCSDomain
	S3Domain
)

var (
	domainFromString = map[string]Domain{
		"all":     AllDomain,
		"init":    InitDomain,
		"cli":     CLIDomain,
		"fetch":   FetchDomain,
		"archive": ArchiveDomain,
		"install": InstallDomain,
		"launch":  LaunchDomain,
		"release": ReleaseDomain,
		"lock":    LockDomain,
		"fs":      FileSystemDomain,
		"gcs":     GCSDomain,
		"s3":      S3Domain,
	}

	stringFromDomain = func() map[Domain]string {
		m := make(map[Domain]string, len(domainFromString))
		for s, d := range domainFromString {
			m[d] = s
		}
		return m
	}()
)

func (d Domain) String() string {
	if s, ok := stringFromDomain[d]; ok {
		return s
	}
	return "unknown"
}

// Domains returns the names accepted by SetDomainLevel in alphabetical order.
func Domains() []string {
	names := make([]string, 0, len(domainFromString))
	for n := range domainFromString {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Builder hands out one named logger per domain. Levels must be set before the first call to Domain
// for a given domain as the resulting loggers are cached.
type Builder struct {
	mu           sync.Mutex
	log          *zap.Logger
	defaultLevel zapcore.Level
	domainLevels map[Domain]zapcore.Level
	cache        map[Domain]*zap.Logger
}

func NewBuilder(out zapcore.WriteSyncer) *Builder {
	return newBuilder(zap.New(zapcore.NewCore(newEncoder(), out, zapcore.DebugLevel)))
}

// NewTestBuilder returns a builder whose loggers discard all output.
func NewTestBuilder() *Builder {
	return newBuilder(zap.NewNop())
}

// NewWriterBuilder logs at debug level for all domains into the given writer. Mostly useful to
// capture log output in tests.
func NewWriterBuilder(w io.Writer) *Builder {
	b := NewBuilder(zapcore.AddSync(w))
	b.defaultLevel = zapcore.DebugLevel
	return b
}

func newBuilder(log *zap.Logger) *Builder {
	return &Builder{
		log:          log,
		defaultLevel: zapcore.InfoLevel,
		domainLevels: map[Domain]zapcore.Level{},
		cache:        map[Domain]*zap.Logger{},
	}
}

func (b *Builder) SetDomainLevel(domain string, level zapcore.Level) {
	b.mu.Lock()
	defer b.mu.Unlock()

	d := domainFromString[domain]
	switch d {
	case UnknownDomain:
		b.log.Warn("Unrecognised logger domain.", zap.String("domain", domain), zap.Strings("known-domains", Domains()))
	case AllDomain:
		b.defaultLevel = level
	case InitDomain, CLIDomain, FetchDomain, ArchiveDomain, InstallDomain, LaunchDomain, ReleaseDomain, LockDomain,
		FileSystemDomain, GCSDomain, S3Domain:
		b.domainLevels[d] = level
	default:
		panic(fmt.Sprintf("unexpected domain %q", d))
	}
}

func (b *Builder) Domain(domain Domain) *zap.Logger {
	b.mu.Lock()
	defer b.mu.Unlock()

	if l, ok := b.cache[domain]; ok {
		return l
	}
	targetLevel := b.defaultLevel
	if lvl, ok := b.domainLevels[domain]; ok {
		targetLevel = lvl
	}
	l := b.log.Named(domain.String()).WithOptions(zap.IncreaseLevel(targetLevel))
	b.cache[domain] = l
	return l
}

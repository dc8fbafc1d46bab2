package obslog

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" WARN ":  zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetRestores(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := Set(zap.New(core))
	L().Info("challenge_join", zap.String("challenge_id", "c1"))
	restore()
	L().Info("dropped")
	if logs.Len() != 1 || logs.All()[0].Message != "challenge_join" {
		t.Fatalf("unexpected captured logs: %v", logs.All())
	}
}

func TestInitFromEnvConsoleOnly(t *testing.T) {
	t.Setenv("LOG_TO_FILE", "false")
	t.Setenv("LOG_FORMAT", "json")
	restore := Set(nil)
	defer restore()
	if err := InitFromEnv(); err != nil {
		t.Fatalf("InitFromEnv: %v", err)
	}
	if L() == nil {
		t.Fatalf("expected logger")
	}
}

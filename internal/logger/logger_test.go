package logger

import (
	"bytes"
	"log/slog"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/waweber/imapfs/cfg"
)

const (
	textTraceString = `time=\S+ severity=TRACE msg=www\.traceExample\.com`
	textDebugString = `time=\S+ severity=DEBUG msg=www\.debugExample\.com`
	textInfoString  = `time=\S+ severity=INFO msg=www\.infoExample\.com`
	textWarnString  = `time=\S+ severity=WARNING msg=www\.warningExample\.com`
	textErrorString = `time=\S+ severity=ERROR msg=www\.errorExample\.com`

	jsonInfoString = `"severity":"INFO".*"msg":"www\.infoExample\.com"`
)

type LoggerTest struct {
	suite.Suite
}

func TestLoggerSuite(t *testing.T) {
	suite.Run(t, new(LoggerTest))
}

func redirectLogsToGivenBuffer(buf *bytes.Buffer, level cfg.LogSeverity) {
	var programLevel = new(slog.LevelVar)
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(buf, programLevel, ""))
	setLoggingLevel(string(level), programLevel)
}

func fetchLogOutputForSeverity(level cfg.LogSeverity) []string {
	var buf bytes.Buffer
	redirectLogsToGivenBuffer(&buf, level)

	var output []string
	for _, f := range []func(){
		func() { Tracef("www.traceExample.com") },
		func() { Debugf("www.debugExample.com") },
		func() { Infof("www.infoExample.com") },
		func() { Warnf("www.warningExample.com") },
		func() { Errorf("www.errorExample.com") },
	} {
		f()
		output = append(output, buf.String())
		buf.Reset()
	}
	return output
}

func (s *LoggerTest) validate(format string, level cfg.LogSeverity, expected []string) {
	defaultLoggerFactory.format = format
	output := fetchLogOutputForSeverity(level)
	for i := range output {
		if expected[i] == "" {
			assert.Equal(s.T(), "", output[i])
			continue
		}
		assert.Regexp(s.T(), regexp.MustCompile(expected[i]), output[i])
	}
}

func (s *LoggerTest) TestTextLogLevelOFF() {
	s.validate("text", cfg.OffLogSeverity, []string{"", "", "", "", ""})
}

func (s *LoggerTest) TestTextLogLevelERROR() {
	s.validate("text", cfg.ErrorLogSeverity, []string{"", "", "", "", textErrorString})
}

func (s *LoggerTest) TestTextLogLevelWARNING() {
	s.validate("text", cfg.WarningLogSeverity, []string{"", "", "", textWarnString, textErrorString})
}

func (s *LoggerTest) TestTextLogLevelINFO() {
	s.validate("text", cfg.InfoLogSeverity, []string{"", "", textInfoString, textWarnString, textErrorString})
}

func (s *LoggerTest) TestTextLogLevelDEBUG() {
	s.validate("text", cfg.DebugLogSeverity, []string{"", textDebugString, textInfoString, textWarnString, textErrorString})
}

func (s *LoggerTest) TestTextLogLevelTRACE() {
	s.validate("text", cfg.TraceLogSeverity, []string{textTraceString, textDebugString, textInfoString, textWarnString, textErrorString})
}

func (s *LoggerTest) TestJSONLogLevelINFO() {
	s.validate("json", cfg.InfoLogSeverity, []string{"", "", jsonInfoString, "", ""})
}

func (s *LoggerTest) TestSetLoggingLevel() {
	testData := []struct {
		input    cfg.LogSeverity
		expected slog.Level
	}{
		{cfg.TraceLogSeverity, LevelTrace},
		{cfg.DebugLogSeverity, LevelDebug},
		{cfg.InfoLogSeverity, LevelInfo},
		{cfg.WarningLogSeverity, LevelWarn},
		{cfg.ErrorLogSeverity, LevelError},
		{cfg.OffLogSeverity, LevelOff},
	}

	for _, test := range testData {
		pl := new(slog.LevelVar)
		setLoggingLevel(string(test.input), pl)
		assert.Equal(s.T(), test.expected, pl.Level())
	}
}

func (s *LoggerTest) TestSetLogFormat() {
	orig := defaultLoggerFactory
	defer func() { defaultLoggerFactory = orig }()

	defaultLoggerFactory = &loggerFactory{format: "text", level: cfg.InfoLogSeverity}
	SetLogFormat("json")
	assert.Equal(s.T(), "json", defaultLoggerFactory.format)

	var buf bytes.Buffer
	redirectLogsToGivenBuffer(&buf, cfg.InfoLogSeverity)
	Infof("www.infoExample.com")
	assert.Regexp(s.T(), regexp.MustCompile(jsonInfoString), buf.String())
}

package eval

import "github.com/sirupsen/logrus"

// Logger returns the log entry of one evaluation. A non-empty level gives the
// evaluation its own logger at that level, sharing the standard logger's
// output and formatter; an empty or invalid level uses the standard logger.
func Logger(evaluation, level string) *logrus.Entry {
	if level == "" {
		return logrus.WithField("evaluation", evaluation)
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.Warnf("evaluation %s: %v, using the global log level", evaluation, err)
		return logrus.WithField("evaluation", evaluation)
	}
	std := logrus.StandardLogger()
	l := logrus.New()
	l.SetOutput(std.Out)
	l.SetFormatter(std.Formatter)
	l.SetLevel(lvl)
	return l.WithField("evaluation", evaluation)
}

package observability

import "github.com/sirupsen/logrus"

// SetupLogging selects the log format for the environment: JSON in
// production, timestamped text elsewhere.
func SetupLogging(appEnv string) {
	if appEnv == "production" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		logrus.SetLevel(logrus.InfoLevel)
		return
	}

	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logrus.SetLevel(logrus.DebugLevel)
}

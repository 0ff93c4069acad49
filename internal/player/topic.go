package player

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

const servicesPrefix = "octue.services."

var topicReplacer = strings.NewReplacer("/", ".", ":", ".")

// NormalizeAnswerTopic returns the topic a consumer with serviceID answers
// questionUUID on.
func NormalizeAnswerTopic(serviceID, questionUUID string) string {
	name := topicReplacer.Replace(norm.NFC.String(serviceID)) + ".answers." + questionUUID
	if !strings.HasPrefix(name, servicesPrefix) {
		name = servicesPrefix + name
	}
	return name
}

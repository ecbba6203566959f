/*
Copyright 2025 ListingLens Engineering.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package notification

import (
	"fmt"
	"net/http"
	"time"

	"github.com/listinglens/skillrun/config"
	"github.com/listinglens/skillrun/internal/request"
	"github.com/sirupsen/logrus"
)

type slackBlock struct {
	Type string            `json:"type"`
	Text map[string]string `json:"text,omitempty"`
}

type slackPayload struct {
	Blocks []slackBlock `json:"blocks"`
}

// SlackNotification posts a system error to the configured Slack webhook.
// Missing configuration is not an error; the notification is just skipped.
func SlackNotification(err error) {
	conf, confErr := config.Fetch()
	if confErr != nil {
		logrus.Error(confErr)
		return
	}
	webhookURL := conf.Notification.Slack.WebhookUrl
	if webhookURL == "" {
		return
	}

	payload := slackPayload{
		Blocks: []slackBlock{
			{
				Type: "section",
				Text: map[string]string{
					"type": "mrkdwn",
					"text": fmt.Sprintf(":red_circle: *%s error*\n```%v```", conf.ProjectName, err),
				},
			},
			{
				Type: "section",
				Text: map[string]string{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*Time:* %s", time.Now().Format(time.RFC1123)),
				},
			},
		},
	}

	body, marshalErr := request.ToJsonReq(payload)
	if marshalErr != nil {
		logrus.Error(marshalErr)
		return
	}

	req, reqErr := http.NewRequest("POST", webhookURL, body)
	if reqErr != nil {
		logrus.Error(reqErr)
		return
	}

	var response map[string]interface{}
	if _, callErr := request.Call(req, &response); callErr != nil {
		logrus.Error(callErr)
	}
}

// NotifyError reports a system error to the configured channels without
// blocking the caller.
func NotifyError(systemError error) {
	go func(systemError error) {
		SlackNotification(systemError)
	}(systemError)
}

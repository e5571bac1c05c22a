/*
Copyright 2024 Meterline Authors.

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
	"log"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/meterline/meterline/config"
	"github.com/meterline/meterline/internal/apierror"
	"github.com/meterline/meterline/internal/request"
)

type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackMessage struct {
	Blocks []slackBlock `json:"blocks"`
}

// buildSlackMessage assembles the alert blocks for a service error. Structured
// apierror failures surface their error code so on-call can tell a stale claim
// or an exhausted balance apart from a genuine server fault at a glance.
func buildSlackMessage(projectName string, err error) slackMessage {
	code := "UNCLASSIFIED"
	message := err.Error()
	if apiErr, ok := err.(apierror.APIError); ok {
		code = string(apiErr.Code)
		message = apiErr.Message
	}
	if projectName == "" {
		projectName = "meterline"
	}

	return slackMessage{
		Blocks: []slackBlock{
			{
				Type: "header",
				Text: &slackText{
					Type:  "plain_text",
					Text:  fmt.Sprintf("%s error", projectName),
					Emoji: true,
				},
			},
			{
				Type: "section",
				Fields: []slackText{
					{Type: "mrkdwn", Text: fmt.Sprintf("*Code:*\n%s", code)},
					{Type: "mrkdwn", Text: fmt.Sprintf("*Time:*\n%s", time.Now().Format(time.RFC822))},
				},
			},
			{
				Type: "section",
				Text: &slackText{Type: "mrkdwn", Text: fmt.Sprintf("*Error:*\n%s", message)},
			},
		},
	}
}

// SlackNotification sends an error alert to the configured Slack webhook.
func SlackNotification(systemError error) {
	conf, err := config.Fetch()
	if err != nil {
		log.Println(err)
		return
	}

	payload, err := request.ToJsonReq(buildSlackMessage(conf.ProjectName, systemError))
	if err != nil {
		log.Println(err)
		return
	}

	req, err := http.NewRequest("POST", conf.Notification.Slack.WebhookUrl, payload)
	if err != nil {
		log.Println(err)
		return
	}

	var response map[string]interface{}
	_, err = request.Call(req, &response)
	if err != nil {
		log.Println(err)
	}
}

// NotifyError logs the error locally and, if Slack is configured, reports it
// there as well. Runs asynchronously so callers never block on notification.
func NotifyError(systemError error) {
	go func(systemError error) {
		logrus.Error(systemError)

		conf, err := config.Fetch()
		if err != nil {
			log.Println(err)
			return
		}

		if conf.Notification.Slack.WebhookUrl != "" {
			SlackNotification(systemError)
		}
	}(systemError)
}

package sip_gateway

import (
	"github.com/emiago/sipgo/sip"
	"github.com/pion/sdp/v3"

	"github.com/arzzra/call_bridge/pkg/provider"
)

// hasVideoOffer проверяет, предлагает ли тело INVITE видеопоток.
// Видео считается предложенным, если SDP содержит секцию m=video
// с ненулевым портом. Некорректное тело трактуется как аудиовызов.
func hasVideoOffer(body []byte, contentType string) bool {
	if len(body) == 0 || contentType != "application/sdp" {
		return false
	}

	var sdpSession sdp.SessionDescription
	if err := sdpSession.UnmarshalString(string(body)); err != nil {
		return false
	}

	for _, md := range sdpSession.MediaDescriptions {
		if md.MediaName.Media == "video" && md.MediaName.Port.Value > 0 {
			return true
		}
	}
	return false
}

// handleFromURI извлекает идентификатор абонента из From URI согласно
// типу идентификаторов провайдера. Для email используется user@host,
// иначе user часть URI с откатом на host.
func handleFromURI(uri sip.Uri, handleType provider.HandleType) string {
	if handleType == provider.HandleEmail && uri.User != "" && uri.Host != "" {
		return uri.User + "@" + uri.Host
	}

	if uri.User != "" {
		return uri.User
	}
	return uri.Host
}

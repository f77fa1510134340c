package iflytek

import (
	"encoding/json"
	"fmt"

	"github.com/sa2kit/iatbridge/domain/entities"
)

const (
	audioFormat   = "audio/L16;rate=16000"
	audioEncoding = "raw"
	vadEOSMillis  = 2000
)

type upstreamCommon struct {
	AppID string `json:"app_id"`
}

type upstreamBusiness struct {
	Language string `json:"language"`
	Domain   string `json:"domain"`
	Accent   string `json:"accent"`
	VadEOS   int    `json:"vad_eos"`
}

type upstreamData struct {
	Status   int     `json:"status"`
	Format   string  `json:"format,omitempty"`
	Encoding string  `json:"encoding,omitempty"`
	Audio    *string `json:"audio,omitempty"`
}

// upstreamFrame is one outbound message to the recognizer. Only the
// first frame of a session carries common/business.
type upstreamFrame struct {
	Common   *upstreamCommon   `json:"common,omitempty"`
	Business *upstreamBusiness `json:"business,omitempty"`
	Data     upstreamData      `json:"data"`
}

// buildUpstreamFrame serializes an audio frame for the recognizer.
// status is the effective status, not the client-declared one; the
// business parameter fall-backs cover clients that omit the tags.
func buildUpstreamFrame(appID string, status entities.FrameStatus, frame entities.AudioFrame, defaults BusinessDefaults) ([]byte, error) {
	out := upstreamFrame{Data: upstreamData{Status: int(status)}}

	switch status {
	case entities.FrameStatusFirst:
		out.Common = &upstreamCommon{AppID: appID}
		out.Business = &upstreamBusiness{
			Language: fallback(frame.Language, defaults.Language),
			Domain:   fallback(frame.Domain, defaults.Domain),
			Accent:   fallback(frame.Accent, defaults.Accent),
			VadEOS:   vadEOSMillis,
		}
		fallthrough
	case entities.FrameStatusContinue:
		audio := frame.Audio
		out.Data.Format = audioFormat
		out.Data.Encoding = audioEncoding
		out.Data.Audio = &audio
	case entities.FrameStatusLast:
		// terminal frame: empty data block
	default:
		return nil, fmt.Errorf("invalid frame status %d", status)
	}

	return json.Marshal(out)
}

// BusinessDefaults are the recognition parameters used when an audio
// frame does not carry its own.
type BusinessDefaults struct {
	Language string
	Domain   string
	Accent   string
}

func fallback(value, def string) string {
	if value != "" {
		return value
	}
	return def
}

// upstreamResponse is one inbound message from the recognizer.
type upstreamResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Status int             `json:"status"`
		Result *upstreamResult `json:"result"`
	} `json:"data"`
}

type upstreamResult struct {
	SN  *int   `json:"sn"`
	Pgs string `json:"pgs"`
	Rg  []int  `json:"rg"`
	WS  []struct {
		CW []struct {
			W string `json:"w"`
		} `json:"cw"`
	} `json:"ws"`
}

// parseResult flattens a recognizer result into the merge input: the
// concatenated best words plus whatever revision directives came with
// them. A two-element rg is required for a usable range; anything
// else is dropped.
func parseResult(res *upstreamResult) Result {
	if res == nil {
		return Result{}
	}

	var text string
	for _, word := range res.WS {
		if len(word.CW) > 0 {
			text += word.CW[0].W
		}
	}

	out := Result{Text: text, SN: res.SN, Pgs: res.Pgs}
	if len(res.Rg) == 2 {
		out.Rg = &[2]int{res.Rg[0], res.Rg[1]}
	}
	return out
}

package speech

import (
	"fmt"

	openai "github.com/openai/openai-go/v3"
)

// Engine names accepted by NewEngine.
const (
	EngineCloud  = "cloud"
	EnginePiper  = "piper"
	EngineEspeak = "espeak"
)

// NewEngine picks an engine by name; voice is the engine-specific voice:
// an OpenAI voice, a piper model file, or an espeak voice. rate only
// applies to espeak.
func NewEngine(name, voice string, rate int, client openai.Client) (Engine, error) {
	switch name {
	case EngineCloud, "":
		return NewCloud(client, "", voice), nil
	case EnginePiper:
		return NewPiper("", voice), nil
	case EngineEspeak:
		return NewEspeak(voice, rate), nil
	default:
		return nil, fmt.Errorf("unknown tts engine %q (want cloud, piper or espeak)", name)
	}
}

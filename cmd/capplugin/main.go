// Command capplugin is a reference plugin: it declares one capability,
// echoing its decoded JSON input back as output, and drives its runtime
// over stdin/stdout.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tetraplex/capmesh/capability"
	"github.com/tetraplex/capmesh/capkey"
	"github.com/tetraplex/capmesh/peer"
	"github.com/tetraplex/capmesh/runtime"
)

type echoInput struct {
	Text string `json:"text"`
}

func main() {
	key, err := capkey.FromString("type=text;action=echo")
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid capability key: %v\n", err)
		os.Exit(1)
	}

	manifest := capability.NewManifest("capplugin", "1.0.0", "echoes text input back as output", []*capability.Capability{
		capability.New(key, "1.0.0", "echo"),
	})

	manifestBytes, err := json.Marshal(manifest)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal manifest: %v\n", err)
		os.Exit(1)
	}

	pr := runtime.NewPluginRuntime(manifestBytes)
	runtime.RegisterTyped(pr, key.ToString(), func(in echoInput, emitter runtime.StreamEmitter, _ peer.Router) error {
		return emitter.EmitCbor(map[string]interface{}{"result": in.Text})
	})

	if err := pr.Run(os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "plugin runtime exited: %v\n", err)
		os.Exit(1)
	}
}

package chains

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pendergraft/contraship/internal/validation"
)

// Artifact is a compiled contract ready to deploy
type Artifact struct {
	Name             string          `json:"name"`
	SourcePath       string          `json:"sourcePath,omitempty"`
	License          string          `json:"license,omitempty"`
	ABI              json.RawMessage `json:"abi"`
	Bytecode         string          `json:"bytecode"`
	DeployedBytecode string          `json:"deployedBytecode,omitempty"`
	Compiler         Compiler        `json:"compiler"`

	// Metadata is the solc metadata JSON, when the build tool kept it
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// Compiler contains compiler details
type Compiler struct {
	Version    string          `json:"version"` // "v0.8.8+commit.dddeac2f"
	Optimizer  OptimizerConfig `json:"optimizer"`
	EVMVersion string          `json:"evmVersion,omitempty"`
	ViaIR      bool            `json:"viaIR,omitempty"`
}

// OptimizerConfig contains optimizer settings
type OptimizerConfig struct {
	Enabled bool `json:"enabled"`
	Runs    int  `json:"runs"`
}

// QualifiedName returns "source:Contract" as explorers expect, or the bare name
// when the source path is unknown
func (a *Artifact) QualifiedName() string {
	if a.SourcePath == "" {
		return a.Name
	}
	return a.SourcePath + ":" + a.Name
}

// artifactFile covers both Foundry (out/X.sol/X.json) and Hardhat
// (artifacts/contracts/X.sol/X.json) artifact layouts
type artifactFile struct {
	ContractName     string          `json:"contractName"`
	SourceName       string          `json:"sourceName"`
	ABI              json.RawMessage `json:"abi"`
	Bytecode         bytecodeField   `json:"bytecode"`
	DeployedBytecode bytecodeField   `json:"deployedBytecode"`
	RawMetadata      string          `json:"rawMetadata"`
	Metadata         json.RawMessage `json:"metadata"`
}

// bytecodeField is either a hex string (Hardhat) or {"object": "0x..."} (Foundry)
type bytecodeField string

func (b *bytecodeField) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*b = bytecodeField(s)
		return nil
	}
	var obj struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("bytecode must be a hex string or an object: %w", err)
	}
	*b = bytecodeField(obj.Object)
	return nil
}

// sourceMetadata is the part of the solc metadata JSON we use
type sourceMetadata struct {
	Compiler struct {
		Version string `json:"version"`
	} `json:"compiler"`
	Language string `json:"language"`
	Settings struct {
		CompilationTarget map[string]string            `json:"compilationTarget"`
		EVMVersion        string                       `json:"evmVersion"`
		Libraries         map[string]map[string]string `json:"libraries"`
		Metadata          *metadataSettings            `json:"metadata,omitempty"`
		Optimizer         OptimizerConfig              `json:"optimizer"`
		Remappings        []string                     `json:"remappings"`
		ViaIR             bool                         `json:"viaIR"`
	} `json:"settings"`
	Sources map[string]struct {
		License string `json:"license"`
	} `json:"sources"`
}

type metadataSettings struct {
	BytecodeHash      string `json:"bytecodeHash,omitempty"`
	UseLiteralContent bool   `json:"useLiteralContent,omitempty"`
	AppendCBOR        *bool  `json:"appendCBOR,omitempty"`
}

// LoadArtifact parses a Foundry or Hardhat artifact file
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}
	a, err := ParseArtifact(data)
	if err != nil {
		return nil, fmt.Errorf("parsing artifact %s: %w", path, err)
	}
	if a.Name == "" {
		a.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return a, nil
}

// ParseArtifact parses artifact JSON. The name is left empty when the file does not carry one.
func ParseArtifact(data []byte) (*Artifact, error) {
	var raw artifactFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing artifact JSON: %w", err)
	}

	if raw.Bytecode == "" || raw.Bytecode == "0x" {
		return nil, ErrNoBytecode
	}
	if len(raw.ABI) == 0 {
		raw.ABI = json.RawMessage("[]")
	}

	a := &Artifact{
		Name:             raw.ContractName,
		SourcePath:       raw.SourceName,
		ABI:              raw.ABI,
		Bytecode:         withHexPrefix(string(raw.Bytecode)),
		DeployedBytecode: withHexPrefix(string(raw.DeployedBytecode)),
	}

	meta := metadataJSON(raw)
	if meta == nil {
		return a, nil
	}

	var md sourceMetadata
	if err := json.Unmarshal(meta, &md); err != nil {
		// Non-fatal, the artifact still deploys without metadata
		return a, nil
	}
	a.Metadata = meta

	for src, name := range md.Settings.CompilationTarget {
		a.SourcePath = src
		if a.Name == "" {
			a.Name = name
		}
	}
	for _, src := range sortedKeys(md.Sources) {
		if l := md.Sources[src].License; l != "" {
			a.License = l
			break
		}
	}
	if md.Compiler.Version != "" {
		if err := validation.ValidateCompilerVersion(md.Compiler.Version); err != nil {
			return nil, fmt.Errorf("metadata compiler version %q: %w", md.Compiler.Version, err)
		}
		a.Compiler.Version = validation.NormalizeCompilerVersion(md.Compiler.Version)
	}
	a.Compiler.EVMVersion = md.Settings.EVMVersion
	a.Compiler.ViaIR = md.Settings.ViaIR
	a.Compiler.Optimizer = md.Settings.Optimizer
	return a, nil
}

// metadataJSON returns the solc metadata, which Foundry stores as rawMetadata (string)
// plus metadata (object) and solc output stores as a JSON string in metadata
func metadataJSON(raw artifactFile) json.RawMessage {
	if raw.RawMetadata != "" {
		return json.RawMessage(raw.RawMetadata)
	}
	if len(raw.Metadata) == 0 || string(raw.Metadata) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw.Metadata, &s); err == nil {
		if s == "" {
			return nil
		}
		return json.RawMessage(s)
	}
	return raw.Metadata
}

// standardJSONInput is the compiler input explorers rebuild the contract from
type standardJSONInput struct {
	Language string                   `json:"language"`
	Sources  map[string]sourceContent `json:"sources"`
	Settings standardJSONSettings     `json:"settings"`
}

type sourceContent struct {
	Content string `json:"content"`
}

type standardJSONSettings struct {
	Optimizer       OptimizerConfig                `json:"optimizer"`
	EVMVersion      string                         `json:"evmVersion,omitempty"`
	ViaIR           bool                           `json:"viaIR,omitempty"`
	Libraries       map[string]map[string]string   `json:"libraries,omitempty"`
	Remappings      []string                       `json:"remappings,omitempty"`
	Metadata        metadataSettings               `json:"metadata"`
	OutputSelection map[string]map[string][]string `json:"outputSelection"`
}

// StandardJSONInput builds a minimal compiler input from the artifact metadata, reading
// each source the metadata lists from root. The input matches the metadata hash embedded
// in the bytecode, so explorers reproduce the exact build.
func (a *Artifact) StandardJSONInput(root string) ([]byte, error) {
	if len(a.Metadata) == 0 {
		return nil, fmt.Errorf("artifact %s has no compiler metadata", a.Name)
	}

	var md sourceMetadata
	if err := json.Unmarshal(a.Metadata, &md); err != nil {
		return nil, fmt.Errorf("parsing compiler metadata: %w", err)
	}
	if len(md.Sources) == 0 {
		return nil, fmt.Errorf("metadata has no sources")
	}

	sources := make(map[string]sourceContent, len(md.Sources))
	for src := range md.Sources {
		content, err := os.ReadFile(filepath.Join(root, src))
		if err != nil {
			return nil, fmt.Errorf("reading source %s: %w", src, err)
		}
		sources[src] = sourceContent{Content: string(content)}
	}

	lang := md.Language
	if lang == "" {
		lang = "Solidity"
	}

	opt := md.Settings.Optimizer
	// Only default runs when optimizer is enabled; when disabled, runs=0 is correct
	if opt.Enabled && opt.Runs == 0 {
		opt.Runs = 200
	}

	meta := metadataSettings{BytecodeHash: "ipfs"}
	if m := md.Settings.Metadata; m != nil {
		if m.BytecodeHash != "" {
			meta.BytecodeHash = m.BytecodeHash
		}
		meta.UseLiteralContent = m.UseLiteralContent
		meta.AppendCBOR = m.AppendCBOR
	}

	input := standardJSONInput{
		Language: lang,
		Sources:  sources,
		Settings: standardJSONSettings{
			Optimizer:  opt,
			EVMVersion: md.Settings.EVMVersion,
			ViaIR:      md.Settings.ViaIR,
			Libraries:  md.Settings.Libraries,
			Remappings: md.Settings.Remappings,
			Metadata:   meta,
			OutputSelection: map[string]map[string][]string{
				"*": {"*": {"abi", "evm.bytecode", "evm.deployedBytecode", "metadata"}},
			},
		},
	}
	return json.Marshal(input)
}

func withHexPrefix(s string) string {
	if s == "" || strings.HasPrefix(s, "0x") {
		return s
	}
	return "0x" + s
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

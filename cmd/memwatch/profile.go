package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"memkit/process"
	"memkit/sigscan"
)

// pagesKey names the private memory pages in a profile
const pagesKey = "*"

// Profile is the watch file:
//
//	targets:
//	  game.exe:
//	    player:
//	      signatures: ["48 8B 05 ?? ?? ?? ?? 48 85 C0"]
//	      offset: 3
//	      follow: true
//	pointers:
//	  - name: health
//	    type: int32
//	    target: game.exe/player
//	    offsets: [0x0, 0x1C]
//	    interval: 100ms
type Profile struct {
	Targets  Targets       `yaml:"targets"`
	Pointers []PointerSpec `yaml:"pointers"`
}

// Targets keeps modules and groups in file order
type Targets []ModuleTargets

type ModuleTargets struct {
	Module string
	Groups []GroupSpec
}

type GroupSpec struct {
	Name       string   `yaml:"-"`
	Signatures []string `yaml:"signatures"`
	Offset     int64    `yaml:"offset"`
	Follow     bool     `yaml:"follow"`
	Disabled   bool     `yaml:"disabled"`
}

type PointerSpec struct {
	Name       string        `yaml:"name"`
	Type       string        `yaml:"type"`
	StringType string        `yaml:"string_type"`
	Target     string        `yaml:"target"`
	Module     string        `yaml:"module"`
	Base       int64         `yaml:"base"`
	Offsets    []int64       `yaml:"offsets"`
	Interval   time.Duration `yaml:"interval"`
}

func (t *Targets) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: targets must be a mapping", node.Line)
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		moduleNode, groupsNode := node.Content[i], node.Content[i+1]
		if groupsNode.Kind != yaml.MappingNode {
			return fmt.Errorf("line %d: module %q must map group names to targets", groupsNode.Line, moduleNode.Value)
		}

		mt := ModuleTargets{Module: moduleNode.Value}
		for j := 0; j+1 < len(groupsNode.Content); j += 2 {
			var g GroupSpec
			if err := groupsNode.Content[j+1].Decode(&g); err != nil {
				return err
			}
			g.Name = groupsNode.Content[j].Value
			mt.Groups = append(mt.Groups, g)
		}
		*t = append(*t, mt)
	}
	return nil
}

var errProfile = errors.New("invalid profile")

func LoadProfileFile(path string) (*Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadProfile(f)
}

func LoadProfile(r io.Reader) (*Profile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var p Profile
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", errProfile, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Profile) Validate() error {
	groups := make(map[string]bool)
	for _, mt := range p.Targets {
		for _, g := range mt.Groups {
			if len(g.Signatures) == 0 {
				return fmt.Errorf("%w: %s/%s has no signatures", errProfile, mt.Module, g.Name)
			}
			for _, s := range g.Signatures {
				if _, err := sigscan.ParseSignature(g.Offset, s); err != nil {
					return fmt.Errorf("%w: %s/%s: %v", errProfile, mt.Module, g.Name, err)
				}
			}
			groups[mt.Module+"/"+g.Name] = true
		}
	}

	names := make(map[string]bool)
	for i, ps := range p.Pointers {
		switch {
		case ps.Name == "":
			return fmt.Errorf("%w: pointer %d has no name", errProfile, i)
		case names[ps.Name]:
			return fmt.Errorf("%w: duplicate pointer %q", errProfile, ps.Name)
		case ps.Target != "" && ps.Module != "":
			return fmt.Errorf("%w: pointer %q sets both target and module", errProfile, ps.Name)
		case ps.Target != "" && !groups[ps.Target]:
			return fmt.Errorf("%w: pointer %q references unknown target %q", errProfile, ps.Name, ps.Target)
		}
		if !knownType(ps.Type) {
			return fmt.Errorf("%w: pointer %q has unknown type %q", errProfile, ps.Name, ps.Type)
		}
		if ps.StringType != "" {
			if _, err := process.ParseStringType(ps.StringType); err != nil {
				return fmt.Errorf("%w: pointer %q: %v", errProfile, ps.Name, err)
			}
		}
		names[ps.Name] = true
	}
	return nil
}

// ScanData compiles the targets for proc
func (p *Profile) ScanData(proc process.Process) *sigscan.ScanData {
	data := sigscan.NewScanData()
	for _, mt := range p.Targets {
		module := mt.Module
		if module == pagesKey {
			module = sigscan.AllPages
		}

		for _, g := range mt.Groups {
			target := sigscan.NewScanTarget()
			for i, s := range g.Signatures {
				sig := sigscan.MustParseSignature(g.Offset, s).WithName(fmt.Sprintf("%s#%d", g.Name, i))
				target.Add(sig)
			}
			if g.Follow {
				target.WithOnFound(sigscan.FollowInstruction(proc))
			}
			target.DoScan = !g.Disabled
			data.Add(module, g.Name, target)
		}
	}
	return data
}

// splitTarget splits "module/group" at the last slash
func splitTarget(ref string) (module, group string) {
	i := strings.LastIndexByte(ref, '/')
	if i < 0 {
		return "", ref
	}
	module, group = ref[:i], ref[i+1:]
	if module == pagesKey {
		module = sigscan.AllPages
	}
	return module, group
}

package pmpt

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"io"
	"sort"

	"github.com/RoaringBitmap/roaring"

	"github.com/logflow/pmcore/pkg/errors"
)

// ParquetMetadataKey is the Parquet footer key holding the tree manifest.
const ParquetMetadataKey = "pm:prefix_tree"

const manifestVersion = "2"

// Manifest is the serializable form of a tree. Case bitmaps are not
// carried.
type Manifest struct {
	Version     string         `json:"version"`
	Fingerprint string         `json:"fingerprint"`
	Stats       ManifestStats  `json:"stats"`
	Root        ManifestRoot   `json:"root"`
	Nodes       []ManifestNode `json:"nodes"`
}

// ManifestStats contains serializable statistics.
type ManifestStats struct {
	TotalCases   int64 `json:"total_cases"`
	TotalEvents  int64 `json:"total_events"`
	UniqueNodes  int64 `json:"unique_nodes"`
	MaxDepth     int   `json:"max_depth"`
	VariantCount int   `json:"variant_count"`
}

// ManifestRoot keeps the counters of the empty prefix.
type ManifestRoot struct {
	Count int64 `json:"count"`
	Ends  int64 `json:"ends,omitempty"`
}

// ManifestNode represents a serializable node.
type ManifestNode struct {
	Hash       string `json:"hash"`
	Activity   string `json:"activity"`
	ParentHash string `json:"parent,omitempty"`
	Count      int64  `json:"count"`
	Ends       int64  `json:"ends,omitempty"`
	Depth      int    `json:"depth"`
}

// ToManifest converts the tree to a manifest listing nodes depth-first.
func (t *Tree) ToManifest() *Manifest {
	st := t.Stats()
	t.mu.RLock()
	defer t.mu.RUnlock()
	m := &Manifest{
		Version:     manifestVersion,
		Fingerprint: st.Fingerprint.FullString(),
		Stats: ManifestStats{
			TotalCases:   st.TotalCases,
			TotalEvents:  st.TotalEvents,
			UniqueNodes:  st.UniqueNodes,
			MaxDepth:     st.MaxDepth,
			VariantCount: st.VariantCount,
		},
		Root:  ManifestRoot{Count: t.Root.Count, Ends: t.Root.Ends},
		Nodes: make([]ManifestNode, 0, st.UniqueNodes),
	}
	t.Walk(func(n *Node) bool {
		if n.Parent == nil {
			return true
		}
		mn := ManifestNode{
			Hash:     n.Hash.FullString(),
			Activity: n.Activity,
			Count:    n.Count,
			Ends:     n.Ends,
			Depth:    n.Depth,
		}
		if n.Parent.Parent != nil {
			mn.ParentHash = n.Parent.Hash.FullString()
		}
		m.Nodes = append(m.Nodes, mn)
		return true
	})
	return m
}

// Tree rebuilds the tree described by the manifest. Case bitmaps are left
// empty.
func (m *Manifest) Tree() (*Tree, error) {
	t := NewTree()
	t.Root.Count, t.Root.Ends = m.Root.Count, m.Root.Ends
	nodes := append([]ManifestNode(nil), m.Nodes...)
	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].Depth < nodes[j].Depth })

	byHash := map[string]*Node{}
	for _, mn := range nodes {
		parent := t.Root
		if mn.ParentHash != "" {
			p, ok := byHash[mn.ParentHash]
			if !ok {
				return nil, errors.New(errors.CodeParseFailed, "manifest node references unknown parent").
					WithContext("hash", mn.Hash)
			}
			parent = p
		}
		n := &Node{
			Hash:     hashNode(mn.Activity, parent),
			Activity: mn.Activity,
			Parent:   parent,
			Count:    mn.Count,
			Ends:     mn.Ends,
			Cases:    roaring.New(),
			Depth:    parent.Depth + 1,
			children: make(map[string]*Node),
		}
		if n.Hash.FullString() != mn.Hash {
			return nil, errors.New(errors.CodeParseFailed, "manifest node hash mismatch").
				WithContext("activity", mn.Activity)
		}
		parent.children[n.Activity] = n
		parent.Children = append(parent.Children, n)
		t.ActivityIndex[n.Activity] = append(t.ActivityIndex[n.Activity], n)
		byHash[mn.Hash] = n
		t.UniqueNodes++
		t.TotalEvents += n.Ends * int64(n.Depth)
		t.MaxDepth = max(t.MaxDepth, n.Depth)
	}
	t.TotalCases = m.Root.Count
	t.dirty = true
	if fp := t.Fingerprint().FullString(); m.Fingerprint != "" && fp != m.Fingerprint {
		return nil, errors.New(errors.CodeParseFailed, "manifest fingerprint mismatch").
			WithContext("want", m.Fingerprint).
			WithContext("got", fp)
	}
	return t, nil
}

// ToCompressedJSON serializes and gzip-compresses the manifest.
func (m *Manifest) ToCompressedJSON() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ManifestFromCompressedJSON deserializes a gzip-compressed manifest.
func ManifestFromCompressedJSON(data []byte) (*Manifest, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeParseFailed, "manifest is not gzip data")
	}
	defer gz.Close()
	raw, err := io.ReadAll(gz)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeParseFailed, "read manifest")
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, errors.Wrap(err, errors.CodeParseFailed, "decode manifest")
	}
	return &m, nil
}

// ToParquetMetadata encodes the manifest for a Parquet footer entry.
func (t *Tree) ToParquetMetadata() (string, error) {
	data, err := t.ToManifest().ToCompressedJSON()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// ManifestFromParquetMetadata decodes a footer entry written by
// ToParquetMetadata.
func ManifestFromParquetMetadata(s string) (*Manifest, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeParseFailed, "manifest is not base64")
	}
	return ManifestFromCompressedJSON(data)
}

package workspace

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/dukex/agentbundle/pkg/bundle"
	"github.com/dukex/agentbundle/pkg/history"
	"github.com/dukex/agentbundle/pkg/models"
)

func (w *Workspace) addNodeCommand(node *models.Node) history.Command {
	return history.Command{
		Name: "add node " + node.ID,
		Do: func(ctx context.Context) error {
			_, err := w.graph.AddNode(ctx, node)

			return err
		},
		Undo: func(ctx context.Context) error {
			_, err := w.graph.RemoveNode(ctx, node.ID)

			return err
		},
	}
}

func (w *Workspace) addEdgeCommand(edge models.Edge) history.Command {
	return history.Command{
		Name: "connect " + edge.SourceNodeID + " -> " + edge.TargetNodeID,
		Do: func(ctx context.Context) error {
			return w.graph.RestoreEdge(ctx, edge)
		},
		Undo: func(ctx context.Context) error {
			return w.graph.RemoveEdge(ctx, edge.ID)
		},
	}
}

// removeNodeCommand captures the node, its edges and its bundle so that undo
// puts all three back.
func (w *Workspace) removeNodeCommand(id string) (history.Command, error) {
	node, err := w.graph.Node(id)
	if err != nil {
		return history.Command{}, err
	}

	edges := w.graph.EdgesTouching(id)

	var owner *models.Bundle
	if bundleID, ok := w.bundles.BundleOf(id); ok {
		if owner, err = w.bundles.Get(bundleID); err != nil {
			return history.Command{}, err
		}
	}

	return history.Command{
		Name: "remove node " + id,
		Do: func(ctx context.Context) error {
			_, err := w.graph.RemoveNode(ctx, id)

			return err
		},
		Undo: func(ctx context.Context) error {
			if _, err := w.graph.AddNode(ctx, node); err != nil {
				return err
			}

			for _, edge := range edges {
				if err := w.graph.RestoreEdge(ctx, edge); err != nil {
					return err
				}
			}

			if owner != nil {
				if _, err := w.bundles.Restore(ctx, owner); err != nil {
					return err
				}
			}

			return nil
		},
	}, nil
}

func (w *Workspace) updateNodeCommand(name, id string, apply, revert func(*models.Node)) history.Command {
	return history.Command{
		Name: name,
		Do: func(ctx context.Context) error {
			_, err := w.graph.UpdateNode(ctx, id, apply)

			return err
		},
		Undo: func(ctx context.Context) error {
			_, err := w.graph.UpdateNode(ctx, id, revert)

			return err
		},
	}
}

func (w *Workspace) setVariablesCommand(node *models.Node, vars map[string]any) history.Command {
	previous := maps.Clone(node.Variables)
	next := maps.Clone(vars)

	return w.updateNodeCommand("set variables of "+node.ID, node.ID,
		func(n *models.Node) { n.Variables = maps.Clone(next) },
		func(n *models.Node) { n.Variables = maps.Clone(previous) },
	)
}

func (w *Workspace) setAgentCommand(node *models.Node, config *models.AgentConfig) history.Command {
	previous, previousLabel := node.Agent.Clone(), node.Label

	return w.updateNodeCommand("update definition of "+node.ID, node.ID,
		func(n *models.Node) {
			n.Agent = config.Clone()
			n.Label = config.Title
		},
		func(n *models.Node) {
			n.Agent = previous.Clone()
			n.Label = previousLabel
		},
	)
}

// createBundleCommand records the bundles the selection is taken from so
// undo can give the nodes back. Redo restores the same bundle id.
func (w *Workspace) createBundleCommand(ids []string, opts bundle.CreateOptions, result **models.Bundle) history.Command {
	var previous []*models.Bundle

	seen := map[models.BundleID]bool{}

	for _, id := range ids {
		if bundleID, ok := w.bundles.BundleOf(id); ok && !seen[bundleID] {
			seen[bundleID] = true

			if b, err := w.bundles.Get(bundleID); err == nil {
				previous = append(previous, b)
			}
		}
	}

	var created *models.Bundle

	return history.Command{
		Name: "create bundle",
		Do: func(ctx context.Context) error {
			var err error

			if created == nil {
				created, err = w.bundles.CreateBundle(ctx, ids, opts)
			} else {
				created, err = w.bundles.Restore(ctx, created)
			}

			if err == nil && result != nil {
				*result = created
			}

			return err
		},
		Undo: func(ctx context.Context) error {
			if _, err := w.bundles.DeleteBundle(ctx, created.ID); err != nil {
				return err
			}

			var errs []error

			for _, b := range previous {
				if _, err := w.bundles.Restore(ctx, b); err != nil {
					errs = append(errs, fmt.Errorf("restore bundle %d: %w", b.ID, err))
				}
			}

			return errors.Join(errs...)
		},
	}
}

func (w *Workspace) deleteBundleCommand(snapshot *models.Bundle) history.Command {
	return history.Command{
		Name: "delete bundle " + snapshot.Name,
		Do: func(ctx context.Context) error {
			_, err := w.bundles.DeleteBundle(ctx, snapshot.ID)

			return err
		},
		Undo: func(ctx context.Context) error {
			_, err := w.bundles.Restore(ctx, snapshot)

			return err
		},
	}
}

func (w *Workspace) renameBundleCommand(snapshot *models.Bundle, name string) history.Command {
	return history.Command{
		Name: "rename bundle " + snapshot.Name,
		Do: func(ctx context.Context) error {
			_, err := w.bundles.RenameBundle(ctx, snapshot.ID, name)

			return err
		},
		Undo: func(ctx context.Context) error {
			_, err := w.bundles.RenameBundle(ctx, snapshot.ID, snapshot.Name)

			return err
		},
	}
}

func (w *Workspace) recolorBundleCommand(snapshot *models.Bundle, color models.Color) history.Command {
	return history.Command{
		Name: "recolor bundle " + snapshot.Name,
		Do: func(ctx context.Context) error {
			_, err := w.bundles.Recolor(ctx, snapshot.ID, color)

			return err
		},
		Undo: func(ctx context.Context) error {
			_, err := w.bundles.Recolor(ctx, snapshot.ID, snapshot.Color)

			return err
		},
	}
}

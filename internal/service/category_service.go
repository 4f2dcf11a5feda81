package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/angple/kb-engine/internal/common"
	"github.com/angple/kb-engine/internal/domain"
	"github.com/angple/kb-engine/internal/repository"
)

// NodeMeta display metadata copied from an article onto its hosting nodes
type NodeMeta struct {
	Name      string
	Permalink string
	Reference string
}

func (m NodeMeta) values() map[string]interface{} {
	return map[string]interface{}{
		"name":      m.Name,
		"permalink": m.Permalink,
		"reference": m.Reference,
	}
}

// CategoryService manages the subject tree and article attachments
type CategoryService struct {
	tx         repository.TxManager
	categories repository.CategoryRepository
}

// NewCategoryService creates a new CategoryService
func NewCategoryService(tx repository.TxManager, categories repository.CategoryRepository) *CategoryService {
	return &CategoryService{tx: tx, categories: categories}
}

// CreateSubject adds a subject under parent (the root when ParentID is nil)
func (s *CategoryService) CreateSubject(ctx context.Context, tenantID uint64, req *domain.CreateSubjectRequest) (*domain.CategoryNode, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := domain.Validate(req); err != nil {
		return nil, err
	}

	var node *domain.CategoryNode
	err := s.tx.ExecTx(ctx, func(ctx context.Context) error {
		parent, err := s.parentFor(ctx, tenantID, req.ParentID)
		if err != nil {
			return err
		}
		node = &domain.CategoryNode{
			TenantID:  tenantID,
			ParentID:  &parent.ID,
			Kind:      domain.NodeSubject,
			Name:      req.Name,
			Permalink: domain.GeneratePermalink(req.Name),
			Position:  req.Position,
		}
		return s.categories.CreateNode(ctx, node)
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

func (s *CategoryService) parentFor(ctx context.Context, tenantID uint64, parentID *uint64) (*domain.CategoryNode, error) {
	if parentID == nil {
		root, err := s.categories.FindRoot(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		if root == nil {
			return nil, common.NotFound("subject", "root")
		}
		return root, nil
	}
	parent, err := s.categories.FindNode(ctx, tenantID, *parentID)
	if err != nil {
		return nil, err
	}
	if parent.Kind != domain.NodeSubject {
		return nil, common.NewValidationError("parent_id", "must be a subject")
	}
	return parent, nil
}

// MoveSubject re-parents a subject. A node can never become its own ancestor.
func (s *CategoryService) MoveSubject(ctx context.Context, tenantID, nodeID, parentID uint64) error {
	return s.tx.ExecTx(ctx, func(ctx context.Context) error {
		node, err := s.categories.FindNode(ctx, tenantID, nodeID)
		if err != nil {
			return err
		}
		if node.Kind != domain.NodeSubject {
			return common.NewValidationError("id", "must be a subject")
		}
		if node.ParentID == nil {
			return common.NewValidationError("id", "root subject cannot be moved")
		}
		parent, err := s.parentFor(ctx, tenantID, &parentID)
		if err != nil {
			return err
		}

		nodes, err := s.categories.ListNodes(ctx, tenantID)
		if err != nil {
			return err
		}
		if isAncestorOrSelf(byID(nodes), node.ID, parent.ID) {
			return common.NewValidationError("parent_id", "would make the subject its own ancestor")
		}

		node.ParentID = &parent.ID
		if err := s.categories.SaveNode(ctx, node); err != nil {
			return fmt.Errorf("move subject: %w", err)
		}
		return s.RecomputeVisibility(ctx, tenantID)
	})
}

func byID(nodes []*domain.CategoryNode) map[uint64]*domain.CategoryNode {
	out := make(map[uint64]*domain.CategoryNode, len(nodes))
	for _, n := range nodes {
		out[n.ID] = n
	}
	return out
}

// isAncestorOrSelf walks up from start looking for target
func isAncestorOrSelf(nodes map[uint64]*domain.CategoryNode, target, start uint64) bool {
	seen := make(map[uint64]bool)
	for id := start; ; {
		if id == target {
			return true
		}
		if seen[id] {
			return true // corrupt tree, refuse
		}
		seen[id] = true
		n, ok := nodes[id]
		if !ok || n.ParentID == nil {
			return false
		}
		id = *n.ParentID
	}
}

// AttachArticle makes subjectIDs the exact subject set of the article.
// Running it twice with the same set leaves one link per (article, subject).
func (s *CategoryService) AttachArticle(ctx context.Context, article *domain.Article, subjectIDs []uint64, meta NodeMeta) error {
	return s.tx.ExecTx(ctx, func(ctx context.Context) error {
		wanted := make(map[uint64]bool, len(subjectIDs))
		for _, id := range subjectIDs {
			if wanted[id] {
				continue
			}
			node, err := s.categories.FindNode(ctx, article.TenantID, id)
			if err != nil || node.Kind != domain.NodeSubject {
				return common.NewValidationError("subject_ids", fmt.Sprintf("subject %d does not exist", id))
			}
			wanted[id] = true
		}

		links, err := s.categories.LinksByArticle(ctx, article.ID)
		if err != nil {
			return err
		}
		var stale []uint64
		have := make(map[uint64]bool, len(links))
		for _, l := range links {
			if wanted[l.SubjectID] && !have[l.SubjectID] {
				have[l.SubjectID] = true
				continue
			}
			stale = append(stale, l.ID)
		}
		if err := s.categories.DeleteLinks(ctx, stale); err != nil {
			return err
		}
		if _, err := s.categories.PruneArticleNodes(ctx, article.TenantID); err != nil {
			return err
		}

		for _, id := range subjectIDs {
			if have[id] {
				continue
			}
			have[id] = true
			link := &domain.ArticleSubject{TenantID: article.TenantID, ArticleID: article.ID, SubjectID: id}
			if err := s.categories.CreateLink(ctx, link); err != nil {
				return fmt.Errorf("attach article: %w", err)
			}
			subjectID := id
			node := &domain.CategoryNode{
				TenantID:  article.TenantID,
				ParentID:  &subjectID,
				Kind:      domain.NodeArticle,
				Name:      meta.Name,
				Permalink: meta.Permalink,
				Reference: meta.Reference,
				LinkID:    &link.ID,
			}
			if err := s.categories.CreateNode(ctx, node); err != nil {
				return fmt.Errorf("create article node: %w", err)
			}
		}
		if err := s.categories.UpdateArticleNodes(ctx, article.ID, meta.values()); err != nil {
			return err
		}
		return s.RecomputeVisibility(ctx, article.TenantID)
	})
}

// SyncArticle refreshes hosting node metadata and visibility after an article save
func (s *CategoryService) SyncArticle(ctx context.Context, article *domain.Article, meta NodeMeta) error {
	return s.tx.ExecTx(ctx, func(ctx context.Context) error {
		if err := s.categories.UpdateArticleNodes(ctx, article.ID, meta.values()); err != nil {
			return err
		}
		if _, err := s.categories.PruneArticleNodes(ctx, article.TenantID); err != nil {
			return err
		}
		return s.RecomputeVisibility(ctx, article.TenantID)
	})
}

// Prune deletes article nodes that lost their link and have no children
func (s *CategoryService) Prune(ctx context.Context, tenantID uint64) (int64, error) {
	return s.categories.PruneArticleNodes(ctx, tenantID)
}

type visibility struct {
	public bool
	staff  bool
}

func (v visibility) or(o visibility) visibility {
	return visibility{public: v.public || o.public, staff: v.staff || o.staff}
}

// RecomputeVisibility recomputes the public and staff visibility of every node
// bottom-up. A subject is visible when a child is visible or an attached
// article is visible.
func (s *CategoryService) RecomputeVisibility(ctx context.Context, tenantID uint64) error {
	nodes, err := s.categories.ListNodes(ctx, tenantID)
	if err != nil {
		return err
	}
	rows, err := s.categories.SubjectArticles(ctx, tenantID)
	if err != nil {
		return err
	}

	byLink := make(map[uint64]visibility, len(rows))
	bySubject := make(map[uint64]visibility)
	for _, row := range rows {
		a := row.Article()
		v := visibility{public: a.PubliclyVisible(), staff: a.IsPublished()}
		byLink[row.LinkID] = v
		bySubject[row.SubjectID] = bySubject[row.SubjectID].or(v)
	}
	children := make(map[uint64][]*domain.CategoryNode)
	for _, n := range nodes {
		if n.ParentID != nil {
			children[*n.ParentID] = append(children[*n.ParentID], n)
		}
	}

	computed := make(map[uint64]visibility, len(nodes))
	visiting := make(map[uint64]bool)
	var visit func(n *domain.CategoryNode) visibility
	visit = func(n *domain.CategoryNode) visibility {
		if v, ok := computed[n.ID]; ok {
			return v
		}
		if visiting[n.ID] {
			return visibility{}
		}
		visiting[n.ID] = true

		var v visibility
		if n.Kind == domain.NodeArticle {
			if n.LinkID != nil {
				v = byLink[*n.LinkID]
			}
		} else {
			v = bySubject[n.ID]
		}
		for _, c := range children[n.ID] {
			v = v.or(visit(c))
		}

		visiting[n.ID] = false
		computed[n.ID] = v
		return v
	}

	for _, n := range nodes {
		v := visit(n)
		if v.public == n.Visible && v.staff == n.StaffVisible {
			continue
		}
		if err := s.categories.UpdateVisibility(ctx, n.ID, v.public, v.staff); err != nil {
			return err
		}
		n.Visible, n.StaffVisible = v.public, v.staff
	}
	return nil
}

// Subjects returns every subject node of the tenant
func (s *CategoryService) Subjects(ctx context.Context, tenantID uint64) ([]*domain.CategoryNode, error) {
	nodes, err := s.categories.ListNodes(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := nodes[:0]
	for _, n := range nodes {
		if n.Kind == domain.NodeSubject {
			out = append(out, n)
		}
	}
	return out, nil
}

// MajorSubjects visible children of the root. staff also counts internal articles.
func (s *CategoryService) MajorSubjects(ctx context.Context, tenantID uint64, staff bool) ([]*domain.CategoryNode, error) {
	root, err := s.categories.FindRoot(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, nil
	}
	nodes, err := s.categories.ListNodes(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	var out []*domain.CategoryNode
	for _, n := range nodes {
		if n.Kind != domain.NodeSubject || n.ParentID == nil || *n.ParentID != root.ID {
			continue
		}
		if (staff && n.StaffVisible) || (!staff && n.Visible) {
			out = append(out, n)
		}
	}
	return out, nil
}

// SubjectIDs subjects the article is attached to
func (s *CategoryService) SubjectIDs(ctx context.Context, articleID uint64) ([]uint64, error) {
	links, err := s.categories.LinksByArticle(ctx, articleID)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, len(links))
	for i, l := range links {
		ids[i] = l.SubjectID
	}
	return ids, nil
}

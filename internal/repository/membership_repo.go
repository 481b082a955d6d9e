package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/teamhive/collab-api/internal/models"
)

// MembershipRepository holds the authoritative project and task membership
// relations that chat membership mirrors.
type MembershipRepository interface {
	FindProject(ctx context.Context, projectID uint) (models.Project, error)
	FindTask(ctx context.Context, taskID uint) (models.Task, error)

	AddProjectMember(ctx context.Context, member *models.ProjectMember) (bool, error)
	RemoveProjectMember(ctx context.Context, projectID uint, userID string) error
	IsProjectMember(ctx context.Context, projectID uint, userID string) (bool, error)
	ListProjectMembers(ctx context.Context, projectID uint) ([]models.ProjectMember, error)
	ListProjectIDsForUser(ctx context.Context, userID string) ([]uint, error)

	AddTaskMember(ctx context.Context, member *models.TaskMember) (bool, error)
	RemoveTaskMember(ctx context.Context, taskID uint, userID string) error
	ListTaskMembers(ctx context.Context, taskID uint) ([]models.TaskMember, error)

	FindInvitation(ctx context.Context, id uint) (models.ProjectInvitation, error)
	CreateInvitation(ctx context.Context, invitation *models.ProjectInvitation) error
	UpdateInvitationStatus(ctx context.Context, id uint, status string) error
}

type membershipRepository struct {
	db *gorm.DB
}

// NewMembershipRepository constructs a membership repository backed by GORM.
func NewMembershipRepository(db *gorm.DB) MembershipRepository {
	return &membershipRepository{db: db}
}

func (r *membershipRepository) FindProject(ctx context.Context, projectID uint) (models.Project, error) {
	var project models.Project
	if err := r.db.WithContext(ctx).First(&project, projectID).Error; err != nil {
		return models.Project{}, err
	}
	return project, nil
}

func (r *membershipRepository) FindTask(ctx context.Context, taskID uint) (models.Task, error) {
	var task models.Task
	if err := r.db.WithContext(ctx).First(&task, taskID).Error; err != nil {
		return models.Task{}, err
	}
	return task, nil
}

// AddProjectMember upserts a membership row, returning false when the user
// was already a member.
func (r *membershipRepository) AddProjectMember(ctx context.Context, member *models.ProjectMember) (bool, error) {
	if member.Role == "" {
		member.Role = "member"
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(member)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *membershipRepository) RemoveProjectMember(ctx context.Context, projectID uint, userID string) error {
	return r.db.WithContext(ctx).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Delete(&models.ProjectMember{}).Error
}

func (r *membershipRepository) IsProjectMember(ctx context.Context, projectID uint, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ProjectMember{}).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *membershipRepository) ListProjectMembers(ctx context.Context, projectID uint) ([]models.ProjectMember, error) {
	var members []models.ProjectMember
	if err := r.db.WithContext(ctx).Where("project_id = ?", projectID).Order("joined_at ASC").Find(&members).Error; err != nil {
		return nil, err
	}
	return members, nil
}

func (r *membershipRepository) ListProjectIDsForUser(ctx context.Context, userID string) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.ProjectMember{}).
		Where("user_id = ?", userID).
		Pluck("project_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *membershipRepository) AddTaskMember(ctx context.Context, member *models.TaskMember) (bool, error) {
	if member.Role == "" {
		member.Role = "member"
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(member)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *membershipRepository) RemoveTaskMember(ctx context.Context, taskID uint, userID string) error {
	return r.db.WithContext(ctx).
		Where("task_id = ? AND user_id = ?", taskID, userID).
		Delete(&models.TaskMember{}).Error
}

func (r *membershipRepository) ListTaskMembers(ctx context.Context, taskID uint) ([]models.TaskMember, error) {
	var members []models.TaskMember
	if err := r.db.WithContext(ctx).Where("task_id = ?", taskID).Order("joined_at ASC").Find(&members).Error; err != nil {
		return nil, err
	}
	return members, nil
}

func (r *membershipRepository) FindInvitation(ctx context.Context, id uint) (models.ProjectInvitation, error) {
	var invitation models.ProjectInvitation
	if err := r.db.WithContext(ctx).First(&invitation, id).Error; err != nil {
		return models.ProjectInvitation{}, err
	}
	return invitation, nil
}

func (r *membershipRepository) CreateInvitation(ctx context.Context, invitation *models.ProjectInvitation) error {
	return r.db.WithContext(ctx).Create(invitation).Error
}

func (r *membershipRepository) UpdateInvitationStatus(ctx context.Context, id uint, status string) error {
	return r.db.WithContext(ctx).Model(&models.ProjectInvitation{}).
		Where("id = ?", id).
		Update("status", status).Error
}

package views

import (
	"context"
	"errors"
	"fmt"
	"html"

	"github.com/localnerve/reestrsi/internal/files"
	"github.com/localnerve/reestrsi/internal/forms"
	"github.com/localnerve/reestrsi/internal/meta"
	"github.com/localnerve/reestrsi/internal/repository"
	"github.com/localnerve/reestrsi/internal/types"
	"go.uber.org/zap"
)

// Action is what a submission does to an object
type Action string

const (
	ActionAdd    Action = "add"
	ActionChange Action = "change"
	ActionDelete Action = "delete"
)

var actionWords = map[Action]string{
	ActionAdd:    "добавлен",
	ActionChange: "изменен",
	ActionDelete: "удален",
}

// ContinueParam asks to stay on the edit page after saving
const ContinueParam = "_continue"

// Notice categories
const (
	NoticeSuccess = "success"
	NoticeWarning = "warning"
	NoticeError   = "error"
)

const (
	MessageNoChanges = "Изменения отсутствуют. Сохранение отменено."
	MessageInvalid   = "Форма заполнена неверно!"
)

// Notice is a one-off message shown on the next page
type Notice struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// Object runs the fetch, save and delete pipelines of one model
type Object struct {
	Descriptor *meta.Descriptor
	Blueprint  string
	Repo       *repository.Repository
	Files      *files.Store
	Forms      *forms.Registry
	FormClass  string // defaults to the model's class
	URLs       URLBuilder
	Log        *zap.Logger

	// PreSave adjusts the instance once files are stored, right before it is persisted
	PreSave func(ctx context.Context, action Action, f *forms.Form) error
	// Persist replaces the default single row add or update
	Persist func(ctx context.Context, action Action, f *forms.Form) error
}

// Result is the outcome of a save or delete
type Result struct {
	Form     *forms.Form
	Object   meta.Entity
	Valid    bool
	Saved    bool
	Notice   Notice
	Redirect string
	Removed  []string // stored files deleted from the upload folder
}

func (o *Object) log() *zap.Logger {
	if o.Log == nil {
		return zap.NewNop()
	}
	return o.Log
}

// Get loads the object by its path id; a missing row is types.ErrNotFound
func (o *Object) Get(ctx context.Context, id string) (meta.Entity, error) {
	return o.Repo.Get(ctx, o.Descriptor, id)
}

func (o *Object) class() (*forms.Class, error) {
	if o.FormClass != "" {
		return o.Forms.Get(o.FormClass)
	}
	return o.Forms.For(o.Descriptor.Name)
}

// Form binds the object form to instance; nil starts a new record
func (o *Object) Form(ctx context.Context, instance meta.Entity, sub forms.Submission, opts ...forms.Option) (*forms.Form, error) {
	class, err := o.class()
	if err != nil {
		return nil, err
	}
	env := forms.Env{Repo: o.Repo, Files: o.Files}
	return forms.New(ctx, env, class, instance, sub, opts...)
}

// ListURL is where a finished save returns to
func (o *Object) ListURL() string {
	return TryURL(o.URLs, RouteName(o.Blueprint, RouteList), modelParams(o.Descriptor))
}

// ObjectURL is the edit page of e
func (o *Object) ObjectURL(e meta.Entity) string {
	return TryURL(o.URLs, RouteName(o.Blueprint, RouteChange), objectParams(o.Descriptor, e))
}

// DeleteURL is the delete confirmation page of e
func (o *Object) DeleteURL(e meta.Entity) string {
	return TryURL(o.URLs, RouteName(o.Blueprint, RouteDelete), objectParams(o.Descriptor, e))
}

// SuccessMessage renders `{verbose name} "{object}" успешно {done}{suffix}.`, linking the object when leaving its page
func (o *Object) SuccessMessage(action Action, e meta.Entity, cont bool) string {
	name := html.EscapeString(e.String())
	linkOrText := name
	resume := ""
	if cont {
		resume = " Можете продолжить редактирование."
	} else if action != ActionDelete {
		if u := o.ObjectURL(e); u != "" {
			linkOrText = fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(u), name)
		}
	}
	return fmt.Sprintf(`%s "%s" успешно %s%s.%s`,
		html.EscapeString(o.Descriptor.VerboseName), linkOrText, actionWords[action],
		html.EscapeString(o.Descriptor.ActionSuffix), resume)
}

// Save validates the submission and persists the instance when something changed.
// New files are written before the row is committed; replaced files are removed after.
func (o *Object) Save(ctx context.Context, action Action, instance meta.Entity, sub forms.Submission) (*Result, error) {
	f, err := o.Form(ctx, instance, sub)
	if err != nil {
		return nil, err
	}
	res := &Result{Form: f, Object: f.Instance}
	if !f.Validate(ctx) {
		res.Notice = Notice{Category: NoticeError, Message: MessageInvalid}
		return res, nil
	}
	res.Valid = true
	cont := sub.Values.Has(ContinueParam)

	if !f.HasChanged() {
		noopSavesTotal.WithLabelValues(o.Descriptor.Name).Inc()
		res.Notice = Notice{Category: NoticeWarning, Message: MessageNoChanges}
		res.Redirect = o.redirect(f.Instance, cont)
		return res, nil
	}

	written, replaced, err := o.storeFiles(f)
	if errors.Is(err, files.ErrFileExists) {
		o.discard(written)
		res.Valid = false
		res.Notice = Notice{Category: NoticeError, Message: MessageInvalid}
		return res, nil
	}
	if err != nil {
		o.discard(written)
		return nil, err
	}
	if o.PreSave != nil {
		if err := o.PreSave(ctx, action, f); err != nil {
			o.discard(written)
			return nil, err
		}
	}
	if err := o.persist(ctx, action, f); err != nil {
		o.discard(written)
		return nil, err
	}
	res.Removed = o.remove(replaced)

	savesTotal.WithLabelValues(o.Descriptor.Name, string(action)).Inc()
	o.log().Info("object saved",
		zap.String("model", o.Descriptor.Name),
		zap.String("action", string(action)),
		zap.Uint("id", f.Instance.PrimaryKey()),
		zap.Strings("changed", f.ChangedData()),
	)
	res.Saved = true
	res.Notice = Notice{Category: NoticeSuccess, Message: o.SuccessMessage(action, f.Instance, cont)}
	res.Redirect = o.redirect(f.Instance, cont)
	return res, nil
}

func (o *Object) redirect(e meta.Entity, cont bool) string {
	if cont && e.PrimaryKey() != 0 {
		return o.ObjectURL(e)
	}
	return o.ListURL()
}

func (o *Object) persist(ctx context.Context, action Action, f *forms.Form) error {
	if o.Persist != nil {
		return o.Persist(ctx, action, f)
	}
	if action == ActionAdd {
		return o.Repo.Add(ctx, f.Instance)
	}
	return o.Repo.Update(ctx, f.Instance)
}

// storedFile is a file in the upload folder
type storedFile struct {
	upload string
	name   string
}

// storeFiles writes new uploads and points the file and hash columns at them.
// It returns the files it wrote and the stored files that are no longer referenced.
func (o *Object) storeFiles(f *forms.Form) (written, replaced []storedFile, err error) {
	for _, fl := range f.ChangedFiles() {
		column := fl.Column()
		if column == nil {
			continue
		}
		hashColumn, _ := o.Descriptor.Field(column.Name + forms.HashSuffix)

		var name, hash any
		if !fl.Clear && fl.Upload != nil {
			if o.Files == nil {
				return written, nil, types.Configf("%s: no upload store for %s", o.Descriptor.Name, fl.Name)
			}
			filename := files.SecureFilename(fl.Upload.Filename)
			sum, err := o.saveUpload(fl, filename)
			if errors.Is(err, files.ErrFileExists) {
				f.AddError(fl.Name, files.ErrFileExists.Error())
			}
			if err != nil {
				return written, nil, err
			}
			written = append(written, storedFile{upload: fl.UploadDir, name: filename})
			name, hash = filename, sum
		}

		if err := column.SetValue(f.Instance, name); err != nil {
			return written, nil, err
		}
		if hashColumn != nil {
			if err := hashColumn.SetValue(f.Instance, hash); err != nil {
				return written, nil, err
			}
		}
		if fl.Stored != "" && fl.Stored != name {
			replaced = append(replaced, storedFile{upload: fl.UploadDir, name: fl.Stored})
		}
	}
	return written, replaced, nil
}

func (o *Object) saveUpload(fl *forms.Field, filename string) (string, error) {
	rc, err := fl.Upload.Open()
	if err != nil {
		return "", fmt.Errorf("failed to read upload %s: %w", fl.Upload.Filename, err)
	}
	defer rc.Close()
	return o.Files.Save(fl.UploadDir, filename, rc)
}

// discard removes files written for a save that did not commit
func (o *Object) discard(written []storedFile) {
	for _, sf := range written {
		if _, err := o.Files.Remove(sf.upload, sf.name); err != nil {
			o.log().Warn("failed to discard upload", zap.String("file", sf.name), zap.Error(err))
		}
	}
}

// remove deletes stored files, logging failures; it returns the names actually removed
func (o *Object) remove(stored []storedFile) []string {
	var removed []string
	for _, sf := range stored {
		ok, err := o.Files.Remove(sf.upload, sf.name)
		if err != nil {
			o.log().Warn("failed to remove file", zap.String("upload", sf.upload), zap.String("file", sf.name), zap.Error(err))
			continue
		}
		if ok {
			filesRemovedTotal.Inc()
			removed = append(removed, sf.name)
		}
	}
	return removed
}

// StoredFiles lists the files referenced by the file columns of e
func StoredFiles(desc *meta.Descriptor, e meta.Entity) []string {
	var out []string
	for _, sf := range storedFiles(desc, e) {
		out = append(out, sf.name)
	}
	return out
}

func storedFiles(desc *meta.Descriptor, e meta.Entity) []storedFile {
	var out []storedFile
	for _, column := range desc.Bound().Fields() {
		if column.Kind != meta.KindFile {
			continue
		}
		if name, ok := column.Value(e).(string); ok && name != "" {
			out = append(out, storedFile{upload: column.Upload, name: name})
		}
	}
	return out
}

// Delete removes the object, then the files its columns referenced
func (o *Object) Delete(ctx context.Context, instance meta.Entity) (*Result, error) {
	if instance == nil {
		return nil, errors.New("delete without an object")
	}
	stored := storedFiles(o.Descriptor, instance)
	if err := o.Repo.Delete(ctx, o.Descriptor, instance); err != nil {
		return nil, err
	}

	res := &Result{Object: instance, Valid: true, Saved: true}
	if o.Files != nil {
		res.Removed = o.remove(stored)
	}
	savesTotal.WithLabelValues(o.Descriptor.Name, string(ActionDelete)).Inc()
	o.log().Info("object deleted",
		zap.String("model", o.Descriptor.Name),
		zap.Uint("id", instance.PrimaryKey()),
		zap.Strings("files", res.Removed),
	)
	res.Notice = Notice{Category: NoticeSuccess, Message: o.SuccessMessage(ActionDelete, instance, false)}
	res.Redirect = o.ListURL()
	return res, nil
}

package hostsim

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"extlayer/internal/extension"
	"extlayer/internal/fatal"
	"extlayer/internal/handle"
	"extlayer/internal/stream"
	"extlayer/logging/persistence"
)

const (
	saveMagic   uint32 = 0x53545845 // "EXTS"
	saveVersion uint32 = 1
	// maxPayload bounds one record payload inside a save.
	maxPayload = 1 << 20
	maxObjects = 1 << 20
	// maxPreallocObjects caps how much of a declared object count is trusted
	// before the objects have actually been read.
	maxPreallocObjects = 1024
)

type savedPayload struct {
	kind extension.Kind
	data []byte
}

type savedObject struct {
	addr     uint64
	id       handle.ID
	class    Class
	payloads []savedPayload
}

type saveFile struct {
	seed    string
	frame   uint64
	objects []savedObject
}

// Save writes the host envelope: a header, then every object in creation
// order with its address, identity, class and one length-prefixed payload
// per extension kind.
func (w *World) Save(ctx context.Context, out io.Writer) error {
	ctx, span := w.tracer.Start(ctx, "hostsim.Save")
	defer span.End()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}

	sw := stream.NewWriter(out)
	sw.Uint32(saveMagic)
	sw.Uint32(saveVersion)
	sw.Text(w.config.Seed)
	sw.Uint64(w.frame)
	sw.Uint32(uint32(len(w.objects)))

	var scratch bytes.Buffer
	for _, obj := range w.objects {
		sw.Uint64(uint64(obj.Addr))
		sw.Handle(obj.ID)
		sw.Text(string(obj.Class))
		kinds := classes[obj.Class].kinds
		sw.Uint32(uint32(len(kinds)))
		for _, kind := range kinds {
			scratch.Reset()
			if err := w.ext.OnHostObjectSerialize(obj.ID, kind, stream.NewWriter(&scratch)); err != nil {
				return spanError(span, fmt.Errorf("hostsim: save %s: %w", obj.ID, err))
			}
			sw.Text(string(kind))
			sw.Bytes(scratch.Bytes())
		}
	}
	if err := sw.Err(); err != nil {
		return spanError(span, fmt.Errorf("hostsim: save: %w", err))
	}

	span.SetAttributes(
		attribute.Int("hostsim.objects", len(w.objects)),
		attribute.Int("hostsim.bytes", sw.Written()),
	)
	persistence.SaveWritten(ctx, w.publisher, w.frame, persistence.World(w.session.String()), persistence.SavePayload{
		Session: w.session.String(),
		Objects: len(w.objects),
		Bytes:   sw.Written(),
	}, nil)
	w.logger.Printf("saved %d objects (%d bytes) at frame %d", len(w.objects), sw.Written(), w.frame)
	return nil
}

func readSave(in io.Reader) (saveFile, error) {
	r := stream.NewReader(in)
	var file saveFile
	if magic := r.Uint32(); r.Err() == nil && magic != saveMagic {
		r.Fail("bad magic %#x", magic)
	}
	if version := r.Uint32(); r.Err() == nil && version != saveVersion {
		r.Fail("unsupported version %d", version)
	}
	file.seed = r.Text()
	file.frame = r.Uint64()
	count := r.Uint32()
	if r.Err() == nil && count > maxObjects {
		r.Fail("object count %d", count)
	}
	if err := r.Err(); err != nil {
		return saveFile{}, err
	}

	hint := min(int(count), maxPreallocObjects)
	seen := make(map[handle.ID]struct{}, hint)
	file.objects = make([]savedObject, 0, hint)
	for i := uint32(0); i < count; i++ {
		obj := savedObject{addr: r.Uint64(), id: r.Handle(), class: Class(r.Text())}
		if r.Err() != nil {
			break
		}
		info, ok := classes[obj.class]
		if !ok {
			r.Fail("object %d: unknown class %q", i, obj.class)
			break
		}
		if obj.id.IsZero() {
			r.Fail("object %d: null identity", i)
			break
		}
		if _, dup := seen[obj.id]; dup {
			r.Fail("object %d: duplicate identity %s", i, obj.id)
			break
		}
		seen[obj.id] = struct{}{}

		n := r.Uint32()
		if r.Err() == nil && int(n) > len(info.kinds) {
			r.Fail("object %d: %d payloads for class %s", i, n, obj.class)
		}
		for j := uint32(0); j < n && r.Err() == nil; j++ {
			kind := extension.Kind(r.Text())
			data := r.Bytes(maxPayload)
			if r.Err() != nil {
				break
			}
			if !slices.Contains(info.kinds, kind) {
				r.Fail("object %d: class %s does not carry %s", i, obj.class, kind)
				break
			}
			obj.payloads = append(obj.payloads, savedPayload{kind: kind, data: data})
		}
		if r.Err() != nil {
			break
		}
		file.objects = append(file.objects, obj)
	}
	if err := r.Err(); err != nil {
		return saveFile{}, err
	}
	return file, nil
}

// Load replaces the world with the contents of a save. The world is reset,
// every object is constructed with record creation deferred, and each record
// is then created and filled by its deserialize call. References between
// objects are translated from saved identities to the new ones.
//
// Any failure abandons the load, resets the world so no half-restored record
// survives, and hands an ErrLoadFailed error to the fatal handler.
func (w *World) Load(ctx context.Context, in io.Reader) error {
	ctx, span := w.tracer.Start(ctx, "hostsim.Load")
	defer span.End()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}

	file, err := readSave(in)
	if err != nil {
		return w.abortLoad(ctx, span, nil, err)
	}
	if file.seed != w.config.Seed {
		w.logger.Printf("loading save made with seed %q into world seeded %q", file.seed, w.config.Seed)
	}

	w.resetLocked()
	pass, err := w.ext.BeginLoad()
	if err != nil {
		return w.abortLoad(ctx, span, nil, err)
	}

	remap := make(map[handle.ID]handle.ID, len(file.objects))
	restored := make([]*Object, 0, len(file.objects))
	for _, saved := range file.objects {
		obj, err := w.spawnLocked(saved.class, w.ext.PerformingLoad())
		if err != nil {
			return w.abortLoad(ctx, span, pass, fmt.Errorf("construct %s: %w", saved.id, err))
		}
		remap[saved.id] = obj.ID
		restored = append(restored, obj)
	}
	translate := func(old handle.ID) (handle.ID, bool) {
		id, ok := remap[old]
		return id, ok
	}

	for i, saved := range file.objects {
		obj := restored[i]
		for _, payload := range saved.payloads {
			r := stream.NewReader(bytes.NewReader(payload.data))
			r.SetRemap(translate)
			if err := w.ext.OnHostObjectDeserialize(obj.ID, payload.kind, r); err != nil {
				return w.abortLoad(ctx, span, pass, err)
			}
			if r.Consumed() != len(payload.data) {
				err := fmt.Errorf("%w: %s %s: %d trailing bytes", stream.ErrMalformed, payload.kind, obj.ID, len(payload.data)-r.Consumed())
				return w.abortLoad(ctx, span, pass, err)
			}
		}
	}
	if err := pass.End(); err != nil {
		return w.abortLoad(ctx, span, nil, err)
	}

	w.frame = file.frame
	w.ext.SetFrame(w.frame)
	span.SetAttributes(attribute.Int("hostsim.objects", len(restored)))
	persistence.LoadCompleted(ctx, w.publisher, w.frame, persistence.World(w.session.String()), persistence.SavePayload{
		Session: w.session.String(),
		Objects: len(restored),
	}, nil)
	w.logger.Printf("loaded %d objects at frame %d", len(restored), w.frame)
	return nil
}

func (w *World) abortLoad(ctx context.Context, span trace.Span, pass *extension.LoadPass, cause error) error {
	if pass != nil {
		_ = pass.End()
	}
	state := w.snapshotLocked()
	w.resetLocked()
	err := fmt.Errorf("%w: %w", ErrLoadFailed, cause)
	spanError(span, err)
	persistence.LoadAborted(ctx, w.publisher, w.frame, persistence.World(w.session.String()), persistence.AbortPayload{Error: err.Error()}, nil)
	w.counters.RecordFatal()
	w.logger.Printf("%v", err)
	w.fatal.HandleFatal(fatal.WithState(ctx, state), err)
	return err
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

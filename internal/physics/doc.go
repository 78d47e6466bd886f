// Package physics runs scene models on an interchangeable backend world.
//
// An [Engine] owns one [backend.World]. Adding or removing a model builds a
// fresh world from every model's multibody graph and restores the state of
// the models that survive:
//
//	eng, err := physics.New(config.DefaultConfig(), physics.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	defer eng.Close()
//	if err := eng.AddModel(ctx, model); err != nil {
//	    return err
//	}
//	for t := dt; t <= duration; t += dt {
//	    if err := eng.Step(ctx, t); err != nil {
//	        log.Warnf("%v", err)
//	    }
//	}
//
// # Locking
//
// Every mutating call takes the engine lock through its context. Post-step
// hooks receive a context that already holds it, so they can call back into
// the engine without blocking. Read accessors such as [Engine.Time] and
// [Engine.Models] return the view published after the last change and
// never block.
//
// # Poses
//
// A completed tick publishes every link pose to the link itself and to a
// queue drained by [Engine.DrainDirtyPoses]. A tick that fails twice
// publishes nothing.
package physics

// Package pstreams is a portable, allocation-bounded implementation of
// a layered message-passing framework modeled on the classical STREAMS
// discipline: a bidirectional stack of independently built protocol
// modules composed dynamically between an application boundary and a
// transport device, each module operating on discrete messages through
// per-direction queues with flow-control watermarks and a cooperative
// service-procedure scheduler.
//
// Every pool a Stream uses, including the payload storage of every
// size-class slot, is built once at Open and never grows, so allocating
// and freeing messages afterwards draws only on those pools. The pools
// are ordinary Go slices: the caller-supplied volatile region is charged
// with the queue, message-block and data-block pool footprints as a
// budget, and is not used as their backing storage. Modules are pairs of QueueInit descriptors spliced into
// the stack with Push and removed with Pop; the included modules/saw
// package is a worked example of the module-authoring contract.
package pstreams

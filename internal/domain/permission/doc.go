/*
Package permission gates extension activation on user approval.

Gate computes the delta between what a manifest declares and what the user
already approved. An empty delta passes straight through. Otherwise a Prompt
joins a FIFO queue; only the head of the queue is visible, and Approve/Deny
always answer the head. Approval merges the delta into the approved set and
persists it through the install store before Gate returns, so a sandbox is
never started with permissions that are not yet on record.

Revoking a permission has no effect on running sandboxes; it applies on the
next activation.
*/
package permission
